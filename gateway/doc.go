// Package gateway bridges WebSocket connections onto a channel layer.
//
// Each accepted socket gets a freshly minted single-reader reply channel.
// The gateway announces the connection on ChannelConnect, forwards every
// client frame to ChannelReceive, and announces the close on
// ChannelDisconnect. Consumers answer by sending to the reply channel named
// in the message's reply_channel field; a dedicated forwarder goroutine per
// connection pumps those messages back to the socket.
//
//	layer := channel.NewMemoryLayer()
//	gw, err := gateway.New(layer, gateway.WithAllowAnyOrigin())
//	if err != nil {
//		log.Fatal(err)
//	}
//	http.Handle("/ws", gw)
//
// A consumer echoes back through the layer:
//
//	router.Route(gateway.ChannelReceive, consumer.Func("echo",
//		func(ctx context.Context, msg channel.Message, _ consumer.Params) error {
//			return layer.Send(ctx, msg.ReplyChannel(), channel.NewMessage(msg.Body, nil))
//		}))
//
// Backpressure is fail-fast: when the layer reports a full channel for an
// inbound frame, the gateway closes the socket so the client knows to back
// off and reconnect.
package gateway
