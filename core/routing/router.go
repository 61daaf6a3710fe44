package routing

import (
	"fmt"
	"slices"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
)

type route struct {
	channel  string
	consumer consumer.Consumer
	filters  []FieldFilter
}

// Router is an ordered table of routes from channel names (plus optional
// field filters) to consumers. The zero value is not usable; create routers
// with New.
type Router struct {
	routes []route
}

// New creates an empty router.
func New() *Router {
	return &Router{}
}

// Route appends a route binding a channel to a consumer. The channel may be
// a plain name ("websocket.receive") or a single-reader base form
// ("websocket.send!") covering every channel minted from that prefix.
// Panics on invalid channel names or nil consumers.
func (r *Router) Route(name string, c consumer.Consumer, filters ...FieldFilter) *Router {
	if !channel.ValidChannelName(name) {
		panic(fmt.Sprintf("routing: invalid channel name %q", name))
	}
	if c == nil {
		panic(fmt.Sprintf("routing: nil consumer for channel %q", name))
	}

	r.routes = append(r.routes, route{channel: name, consumer: c, filters: filters})
	return r
}

// Include appends every route of a sub-router, fusing the given prefix
// filters onto them. A prefix filter concatenates with the sub-route's
// filter on the same field (the nested "^" anchor is dropped); sub-routes
// without a filter on that field get the prefix filter as-is.
//
// The sub-router is copied; later changes to it do not affect this router.
func (r *Router) Include(sub *Router, prefixes ...FieldFilter) *Router {
	for _, rt := range sub.routes {
		fused := make([]FieldFilter, 0, len(rt.filters)+len(prefixes))
		for _, prefix := range prefixes {
			fusedIntoNested := false
			for _, f := range rt.filters {
				if f.field == prefix.field {
					fusedIntoNested = true
					break
				}
			}
			if !fusedIntoNested {
				fused = append(fused, prefix)
			}
		}
		for _, f := range rt.filters {
			for _, prefix := range prefixes {
				if f.field == prefix.field {
					f = f.fuse(prefix)
				}
			}
			fused = append(fused, f)
		}

		r.routes = append(r.routes, route{channel: rt.channel, consumer: rt.consumer, filters: fused})
	}
	return r
}

// Resolve finds the consumer for a received message. It returns the first
// route, in registration order, whose channel matches the message's channel
// (exactly, or by single-reader base form) and whose filters all match.
// Params carries the named captures from every matched filter.
func (r *Router) Resolve(msg channel.Message) (consumer.Consumer, consumer.Params, bool) {
	base := channel.BaseName(msg.Channel)

	for _, rt := range r.routes {
		if rt.channel != msg.Channel && rt.channel != base {
			continue
		}

		params := make(consumer.Params)
		matched := true
		for _, f := range rt.filters {
			if !f.match(msg, params) {
				matched = false
				break
			}
		}
		if matched {
			return rt.consumer, params, true
		}
	}

	return nil, nil, false
}

// Channels returns the sorted, deduplicated set of channel names this router
// consumes. Workers use it as their receive set.
func (r *Router) Channels() []string {
	names := make([]string, 0, len(r.routes))
	for _, rt := range r.routes {
		names = append(names, rt.channel)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Routes returns a description of every route for debugging and startup
// logging.
func (r *Router) Routes() []RouteInfo {
	infos := make([]RouteInfo, len(r.routes))
	for i, rt := range r.routes {
		filters := make(map[string]string, len(rt.filters))
		for _, f := range rt.filters {
			filters[f.field] = f.pattern
		}
		infos[i] = RouteInfo{
			Channel:  rt.channel,
			Consumer: rt.consumer.Name(),
			Filters:  filters,
		}
	}
	return infos
}

// RouteInfo describes a single route for introspection.
type RouteInfo struct {
	Channel  string
	Consumer string
	Filters  map[string]string
}
