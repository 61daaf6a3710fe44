// Package consumer defines the contract between routed messages and the
// application code that handles them.
//
// A Consumer is invoked by a worker with the received message and any
// parameters extracted by routing filters. Use Func for plain function
// consumers or NewJSON for type-safe consumers that decode the message body:
//
//	type ChatPost struct {
//		Text string `json:"text"`
//	}
//
//	c := consumer.NewJSON(func(ctx context.Context, post ChatPost, msg channel.Message, params consumer.Params) error {
//		return store.Append(params["room"], post.Text)
//	})
//
// Returning ErrConsumeLater asks the worker to requeue the message and try
// again later.
package consumer
