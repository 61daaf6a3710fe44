// Package routing maps received messages to consumers.
//
// A router holds an ordered list of routes. Each route binds a channel name
// to a consumer, optionally guarded by field filters: regular expressions
// matched against the message's string fields. Named capture groups become
// parameters passed to the consumer, giving URL-style argument extraction
// for message protocols.
//
//	r := routing.New().
//		Route("websocket.connect", onConnect, routing.Path(`^/chat/(?P<room>[^/]+)/$`)).
//		Route("websocket.receive", onReceive, routing.Path(`^/chat/(?P<room>[^/]+)/$`)).
//		Route("websocket.disconnect", onDisconnect)
//
// Routes match in registration order; the first route whose channel and
// filters all match wins. A route with no filters matches every message on
// its channel.
//
// Sub-routers compose with path prefixes. Filters in the parent are fused
// onto the sub-router's filters, so the sub-router can be written against
// its local paths:
//
//	chat := routing.New().
//		Route("websocket.receive", onReceive, routing.Path(`^/(?P<room>[^/]+)/$`))
//
//	root := routing.New().
//		Include(chat, routing.Path(`^/chat`))
//
// Route and Include panic on malformed patterns or channel names, the same
// posture HTTP routers take: route tables are wired at startup and a bad
// pattern is a programmer error.
package routing
