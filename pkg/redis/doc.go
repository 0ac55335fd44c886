// Package redis provides helpers for connecting to a Redis server.
//
// Connect retries the connection using the supplied configuration and
// Healthcheck integrates the client into liveness probes. Configuration is
// described by the Config struct whose fields are populated from environment
// variables via github.com/caarlos0/env.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
package redis
