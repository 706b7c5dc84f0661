package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
)

// Connect builds the Business Central client described by cfg. When
// RedisURL is set it also connects to Redis, which the caller must close.
func (cfg Config) Connect(ctx context.Context) (*client.Client, *redis.Client, error) {
	cc := cfg.Client()

	opts, err := cfg.RedisOptions()
	if err != nil {
		return nil, nil, err
	}
	var rdb *redis.Client
	if opts != nil {
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		cc.Redis = rdb
	}

	if creds, ok := cfg.Credentials(); ok {
		httpClient, err := client.NewOAuth2HTTPClient(ctx, creds)
		if err != nil {
			closeRedis(rdb)
			return nil, nil, err
		}
		httpClient.Timeout = cc.Timeout
		cc.HTTPClient = httpClient
	}

	c, err := client.New(cc)
	if err != nil {
		closeRedis(rdb)
		return nil, nil, err
	}
	return c, rdb, nil
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		rdb.Close()
	}
}
