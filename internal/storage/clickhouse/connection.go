// Package clickhouse mirrors persisted observations into ClickHouse for
// long-term retention and ad-hoc analysis.
package clickhouse

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultRetryDelay  = 1 * time.Second
)

// Config holds the archive connection and batching parameters.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool

	DialTimeout time.Duration
	// MaxRetries bounds connection attempts at startup
	MaxRetries int

	// BatchSize rows are buffered before a write (default 1000)
	BatchSize int
	// FlushInterval is the longest a row waits in the buffer (default 5s)
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:          "localhost:9000",
		Database:      "default",
		Username:      "default",
		DialTimeout:   defaultDialTimeout,
		MaxRetries:    3,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

func (c Config) options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{c.Addr},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      c.DialTimeout,
		MaxOpenConns:     4,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.Secure {
		opts.TLS = &tls.Config{}
	}
	return opts
}

// Connect opens and pings a connection, retrying with exponential backoff.
func Connect(ctx context.Context, cfg Config) (driver.Conn, error) {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := defaultRetryDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		var conn driver.Conn
		conn, err = clickhouse.Open(cfg.options())
		if err == nil {
			if err = conn.Ping(ctx); err == nil {
				return conn, nil
			}
			conn.Close()
		}

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}

	return nil, fmt.Errorf("connecting to clickhouse at %s after %d attempts: %w", cfg.Addr, attempts, err)
}
