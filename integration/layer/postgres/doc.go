// Package postgres provides a database-backed channel layer for deployments
// that already run Postgres and do not want to operate a separate broker.
//
// Messages live in a table consumed with FOR UPDATE SKIP LOCKED deletes, so
// multiple worker processes can receive concurrently without double
// delivery. Blocking receives poll at a configurable interval. Groups are a
// membership table with per-row expiry.
//
//	cfg := postgres.Config{ConnectionURL: "postgres://localhost:5432/app"}
//	pool, err := postgres.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := postgres.Migrate(ctx, cfg.ConnectionURL); err != nil {
//		log.Fatal(err)
//	}
//
//	layer := postgres.NewLayer(pool, channel.DefaultConfig())
//	go layer.Start(ctx) // background cleanup of expired rows
//
// Throughput is bounded by the database; prefer the Redis layer for chatty
// protocols. This layer trades latency for operational simplicity.
package postgres
