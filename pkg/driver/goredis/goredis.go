// Package goredis registers the go-redis client as the "goredis" driver.
package goredis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/cacheboot/pkg/driver"
)

func init() {
	driver.Register(driver.Driver{Name: driver.GoRedis, Dial: Dial})
}

// Client holds one go-redis client per endpoint. Endpoints are independent
// standalone servers, not cluster members.
type Client struct {
	order   []string
	clients map[string]redis.UniversalClient
}

// Config holds go-redis client configuration
type Config struct {
	// Client is an existing client to wrap; when set the other fields are ignored
	Client redis.UniversalClient

	// Endpoints are "host:port" addresses, each dialed separately
	Endpoints []string

	Options driver.Options
}

// New creates a client from config
func New(config *Config) (*Client, error) {
	if config.Client != nil {
		return &Client{
			order:   []string{""},
			clients: map[string]redis.UniversalClient{"": config.Client},
		}, nil
	}
	if len(config.Endpoints) == 0 {
		return nil, driver.ErrNoEndpoints
	}

	c := &Client{clients: make(map[string]redis.UniversalClient, len(config.Endpoints))}
	for _, addr := range config.Endpoints {
		if _, ok := c.clients[addr]; ok {
			continue
		}
		c.order = append(c.order, addr)
		c.clients[addr] = redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    config.Options.Password,
			DB:          config.Options.DB,
			DialTimeout: config.Options.DialTimeout,
		})
	}
	return c, nil
}

// Dial implements driver.DialFunc
func Dial(_ context.Context, endpoints []string, opts driver.Options) (driver.Client, error) {
	return New(&Config{Endpoints: endpoints, Options: opts})
}

// Endpoints returns the dialed endpoints in order; a wrapped client reports none
func (c *Client) Endpoints() []string {
	out := make([]string, 0, len(c.order))
	for _, addr := range c.order {
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Ping sends PING to every endpoint and joins the failures
func (c *Client) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range c.order {
		if err := c.clients[addr].Ping(ctx).Err(); err != nil {
			if addr == "" {
				errs = append(errs, fmt.Errorf("failed to ping redis: %w", err))
				continue
			}
			errs = append(errs, fmt.Errorf("failed to ping %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every client's connections
func (c *Client) Close() error {
	var errs []error
	for _, addr := range c.order {
		if err := c.clients[addr].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unwrap returns the underlying go-redis clients in endpoint order
func (c *Client) Unwrap() []redis.UniversalClient {
	out := make([]redis.UniversalClient, 0, len(c.order))
	for _, addr := range c.order {
		out = append(out, c.clients[addr])
	}
	return out
}

var _ driver.Client = (*Client)(nil)
