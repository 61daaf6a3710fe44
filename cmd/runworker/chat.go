package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
	"github.com/dmitrymomot/channeled/core/routing"
	"github.com/dmitrymomot/channeled/gateway"
)

// chatService is the demo application behind the worker: a room-based chat.
// Clients connect to /chat/<room>; every frame they send is broadcast to the
// room's group.
type chatService struct {
	layer  channel.Layer
	logger *slog.Logger
}

// pathFilter extracts the room name from the connection path.
const pathFilter = `^/chat/(?P<room>[a-zA-Z0-9_-]+)$`

func groupName(room string) string {
	return "chat." + room
}

func (s *chatService) router() *routing.Router {
	return routing.New().
		Route(gateway.ChannelConnect, consumer.Func("chat.join", s.join), routing.Path(pathFilter)).
		Route(gateway.ChannelReceive, consumer.Func("chat.broadcast", s.broadcast), routing.Path(pathFilter)).
		Route(gateway.ChannelDisconnect, consumer.Func("chat.leave", s.leave), routing.Path(pathFilter))
}

func (s *chatService) join(ctx context.Context, msg channel.Message, params consumer.Params) error {
	room := params.Get("room")
	if err := s.layer.GroupAdd(ctx, groupName(room), msg.ReplyChannel()); err != nil {
		return fmt.Errorf("join room %q: %w", room, err)
	}

	s.logger.InfoContext(ctx, "client joined room",
		slog.String("room", room),
		slog.String("reply_channel", msg.ReplyChannel()))
	return nil
}

func (s *chatService) broadcast(ctx context.Context, msg channel.Message, params consumer.Params) error {
	room := params.Get("room")

	// Membership refresh keeps chatty clients from expiring out of the room.
	if err := s.layer.GroupAdd(ctx, groupName(room), msg.ReplyChannel()); err != nil {
		return fmt.Errorf("refresh room %q: %w", room, err)
	}

	out := channel.NewMessage(msg.Body, nil)
	if err := s.layer.SendGroup(ctx, groupName(room), out); err != nil {
		return fmt.Errorf("broadcast to room %q: %w", room, err)
	}
	return nil
}

func (s *chatService) leave(ctx context.Context, msg channel.Message, params consumer.Params) error {
	room := params.Get("room")
	if err := s.layer.GroupDiscard(ctx, groupName(room), msg.ReplyChannel()); err != nil {
		return fmt.Errorf("leave room %q: %w", room, err)
	}

	s.logger.InfoContext(ctx, "client left room",
		slog.String("room", room),
		slog.String("reply_channel", msg.ReplyChannel()))
	return nil
}
