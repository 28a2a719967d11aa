package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_product.lua
var claimProductScript string

//go:embed scripts/release_product.lua
var releaseProductScript string

type Client struct {
	rdb           *redis.Client
	claimScript   *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		claimScript:   redis.NewScript(claimProductScript),
		releaseScript: redis.NewScript(releaseProductScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ClaimKey is the key holding the request that has a product locked
func ClaimKey(productID int64) string {
	return fmt.Sprintf("claim:product:%d", productID)
}

// ClaimProduct atomically marks productID as held by requestID.
// Returns false when another request already holds it.
func (c *Client) ClaimProduct(ctx context.Context, productID, requestID int64) (bool, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{ClaimKey(productID)}, requestID).Result()
	if err != nil {
		return false, fmt.Errorf("claim product script failed: %w", err)
	}

	success, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return success == 1, nil
}

// ReleaseProduct drops the claim if requestID still holds it
func (c *Client) ReleaseProduct(ctx context.Context, productID, requestID int64) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{ClaimKey(productID)}, requestID).Result()
	if err != nil {
		return fmt.Errorf("release product script failed: %w", err)
	}
	return nil
}

// ClaimedBy returns the request holding productID, or 0 when it is free
func (c *Client) ClaimedBy(ctx context.Context, productID int64) (int64, error) {
	raw, err := c.rdb.Get(ctx, ClaimKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	requestID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed claim for product %d: %w", productID, err)
	}
	return requestID, nil
}

// InitClaim overwrites the claim for productID, used when rebuilding from the database
func (c *Client) InitClaim(ctx context.Context, productID, requestID int64) error {
	return c.rdb.Set(ctx, ClaimKey(productID), requestID, 0).Err()
}
