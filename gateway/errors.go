package gateway

import "errors"

// ErrLayerNil is returned when the gateway is constructed without a channel layer.
var ErrLayerNil = errors.New("channel layer is nil")
