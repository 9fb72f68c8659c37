package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// poolHeadroom is the number of connections kept free for short commands
// (acks, status writes) while blocking queue reads hold the rest.
const poolHeadroom = 10

// PoolSizeFor sizes a client pool shared by blockingClients callers that
// each may hold a connection inside a blocking command.
func PoolSizeFor(blockingClients int) int {
	if blockingClients < 0 {
		blockingClients = 0
	}
	return blockingClients + poolHeadroom
}

func Connect(ctx context.Context, addr string, poolSize int) (*redis.Client, error) {
	if poolSize <= 0 {
		poolSize = PoolSizeFor(0)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		PoolTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
