// Package redigo registers the redigo pooled client as the "redigo" driver.
package redigo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/vnykmshr/cacheboot/pkg/driver"
)

func init() {
	driver.Register(driver.Driver{Name: driver.Redigo, Dial: Dial})
}

// Client holds one connection pool per endpoint
type Client struct {
	pools map[string]*redis.Pool
	order []string
}

// Dial implements driver.DialFunc. Connections are opened lazily by the
// pools, so Dial itself does no network I/O.
func Dial(_ context.Context, endpoints []string, opts driver.Options) (driver.Client, error) {
	return New(endpoints, opts)
}

// New creates a client with a pool per endpoint
func New(endpoints []string, opts driver.Options) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, driver.ErrNoEndpoints
	}
	c := &Client{pools: make(map[string]*redis.Pool, len(endpoints))}
	for _, addr := range endpoints {
		if _, ok := c.pools[addr]; ok {
			continue
		}
		c.order = append(c.order, addr)
		c.pools[addr] = newPool(addr, opts)
	}
	return c, nil
}

func newPool(addr string, opts driver.Options) *redis.Pool {
	dialOpts := []redis.DialOption{redis.DialDatabase(opts.DB)}
	if opts.Password != "" {
		dialOpts = append(dialOpts, redis.DialPassword(opts.Password))
	}
	if opts.DialTimeout > 0 {
		dialOpts = append(dialOpts, redis.DialConnectTimeout(opts.DialTimeout))
	}
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr, dialOpts...)
		},
	}
}

// Endpoints returns the pooled endpoints in dial order
func (c *Client) Endpoints() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Ping sends PING to every endpoint and joins the failures
func (c *Client) Ping(ctx context.Context) error {
	var errs []error
	for _, addr := range c.order {
		if err := ping(ctx, c.pools[addr]); err != nil {
			errs = append(errs, fmt.Errorf("failed to ping %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func ping(ctx context.Context, pool *redis.Pool) error {
	conn, err := pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := redis.String(conn.Do("PING"))
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("unexpected reply %q", reply)
	}
	return nil
}

// Close closes every pool
func (c *Client) Close() error {
	var errs []error
	for _, addr := range c.order {
		if err := c.pools[addr].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ driver.Client = (*Client)(nil)
