package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/channeled/core/channel"
	"github.com/dmitrymomot/channeled/core/consumer"
	"github.com/dmitrymomot/channeled/core/routing"
	"github.com/dmitrymomot/channeled/core/worker"
)

func TestNew(t *testing.T) {
	t.Parallel()

	layer := channel.NewMemoryLayer()
	router := routing.New()

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		require.NotNil(t, w)
	})

	t.Run("nil layer", func(t *testing.T) {
		t.Parallel()

		_, err := worker.New(nil, router)
		assert.ErrorIs(t, err, worker.ErrLayerNil)
	})

	t.Run("nil router", func(t *testing.T) {
		t.Parallel()

		_, err := worker.New(layer, nil)
		assert.ErrorIs(t, err, worker.ErrRouterNil)
	})
}

func TestWorker_Channels(t *testing.T) {
	t.Parallel()

	layer := channel.NewMemoryLayer()
	router := routing.New().
		Route("websocket.connect", nop("a")).
		Route("websocket.receive", nop("b")).
		Route("websocket.send!", nop("c")).
		Route("local.only?", nop("d"))

	t.Run("single-reader and local routes excluded", func(t *testing.T) {
		t.Parallel()

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		assert.Equal(t, []string{"websocket.connect", "websocket.receive"}, w.Channels())
	})

	t.Run("only filter", func(t *testing.T) {
		t.Parallel()

		w, err := worker.New(layer, router, worker.WithOnlyChannels("websocket.receive"))
		require.NoError(t, err)
		assert.Equal(t, []string{"websocket.receive"}, w.Channels())
	})

	t.Run("exclude filter", func(t *testing.T) {
		t.Parallel()

		w, err := worker.New(layer, router, worker.WithExcludeChannels("websocket.connect"))
		require.NoError(t, err)
		assert.Equal(t, []string{"websocket.receive"}, w.Channels())
	})

	t.Run("empty receive set fails start", func(t *testing.T) {
		t.Parallel()

		w, err := worker.New(layer, routing.New())
		require.NoError(t, err)
		assert.ErrorIs(t, w.Start(context.Background()), worker.ErrNoChannels)
	})
}

func nop(name string) consumer.Consumer {
	return consumer.Func(name, func(context.Context, channel.Message, consumer.Params) error {
		return nil
	})
}

func startWorker(t *testing.T, w *worker.Worker) {
	t.Helper()
	go func() { _ = w.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return w.Stats().IsRunning
	}, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() { _ = w.Stop() })
}

func TestWorker_Dispatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("routes message to consumer with params", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		got := make(chan consumer.Params, 1)
		router := routing.New().Route("chat.receive",
			consumer.Func("chat", func(_ context.Context, msg channel.Message, params consumer.Params) error {
				got <- params
				return nil
			}),
			routing.Path(`^/chat/(?P<room>[^/]+)/$`))

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		startWorker(t, w)

		msg := channel.NewMessage([]byte(`{}`), map[string]string{channel.FieldPath: "/chat/lobby/"})
		require.NoError(t, layer.Send(ctx, "chat.receive", msg))

		select {
		case params := <-got:
			assert.Equal(t, "lobby", params.Get("room"))
		case <-time.After(2 * time.Second):
			t.Fatal("consumer never invoked")
		}

		assert.Eventually(t, func() bool {
			return w.Stats().MessagesProcessed == 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("unroutable message counted", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		router := routing.New().Route("chat.receive", nop("chat"), routing.Path(`^/chat/`))

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		startWorker(t, w)

		msg := channel.NewMessage(nil, map[string]string{channel.FieldPath: "/elsewhere/"})
		require.NoError(t, layer.Send(ctx, "chat.receive", msg))

		assert.Eventually(t, func() bool {
			return w.Stats().MessagesUnroutable == 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("consumer error counted as failure", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		router := routing.New().Route("fail.receive",
			consumer.Func("fail", func(context.Context, channel.Message, consumer.Params) error {
				return assert.AnError
			}))

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		startWorker(t, w)

		require.NoError(t, layer.Send(ctx, "fail.receive", channel.NewMessage(nil, nil)))

		assert.Eventually(t, func() bool {
			return w.Stats().MessagesFailed == 1
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("panicking consumer recovered", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		router := routing.New().Route("panic.receive",
			consumer.Func("boom", func(context.Context, channel.Message, consumer.Params) error {
				panic("boom")
			}))

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		startWorker(t, w)

		require.NoError(t, layer.Send(ctx, "panic.receive", channel.NewMessage(nil, nil)))

		assert.Eventually(t, func() bool {
			return w.Stats().MessagesFailed == 1
		}, 2*time.Second, 5*time.Millisecond)

		// Worker survives and keeps processing.
		assert.True(t, w.Stats().IsRunning)
	})
}

func TestWorker_Redelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("consume later requeues until success", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		var attempts atomic.Int32
		done := make(chan channel.Message, 1)
		router := routing.New().Route("retry.receive",
			consumer.Func("retry", func(_ context.Context, msg channel.Message, _ consumer.Params) error {
				if attempts.Add(1) < 3 {
					return consumer.ErrConsumeLater
				}
				done <- msg
				return nil
			}))

		w, err := worker.New(layer, router)
		require.NoError(t, err)
		startWorker(t, w)

		require.NoError(t, layer.Send(ctx, "retry.receive", channel.NewMessage(nil, nil)))

		select {
		case msg := <-done:
			assert.Equal(t, 2, msg.Retries)
		case <-time.After(2 * time.Second):
			t.Fatal("message never consumed")
		}

		stats := w.Stats()
		assert.Equal(t, int64(2), stats.MessagesRequeued)
		assert.Equal(t, int64(1), stats.MessagesProcessed)
	})

	t.Run("dropped after max redeliveries", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		router := routing.New().Route("drop.receive",
			consumer.Func("never", func(context.Context, channel.Message, consumer.Params) error {
				return consumer.ErrConsumeLater
			}))

		w, err := worker.New(layer, router, worker.WithMaxRetries(2))
		require.NoError(t, err)
		startWorker(t, w)

		require.NoError(t, layer.Send(ctx, "drop.receive", channel.NewMessage(nil, nil)))

		assert.Eventually(t, func() bool {
			stats := w.Stats()
			return stats.MessagesDropped == 1 && stats.MessagesRequeued == 2
		}, 2*time.Second, 5*time.Millisecond)
	})
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("stop before start", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		w, err := worker.New(layer, routing.New().Route("a.b", nop("x")))
		require.NoError(t, err)
		assert.Error(t, w.Stop())
	})

	t.Run("double start rejected", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		w, err := worker.New(layer, routing.New().Route("a.b", nop("x")))
		require.NoError(t, err)
		startWorker(t, w)

		assert.Error(t, w.Start(context.Background()))
	})

	t.Run("healthcheck", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		w, err := worker.New(layer, routing.New().Route("a.b", nop("x")))
		require.NoError(t, err)

		assert.ErrorIs(t, w.Healthcheck(context.Background()), worker.ErrWorkerNotRunning)

		startWorker(t, w)
		assert.NoError(t, w.Healthcheck(context.Background()))
	})

	t.Run("run stops on context cancel", func(t *testing.T) {
		t.Parallel()

		layer := channel.NewMemoryLayer()
		w, err := worker.New(layer, routing.New().Route("a.b", nop("x")))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- w.Run(ctx)() }()

		require.Eventually(t, func() bool {
			return w.Stats().IsRunning
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run never returned")
		}
	})
}
