// Package client pushes records and metrics to a kodama server over UDP.
//
// Every push is non-blocking: commands are encoded on the caller's goroutine
// and queued; a single goroutine drains the queue with connectionless sends.
// When the queue is full the command is dropped.
package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fidde/kodama/pkg/models"
)

// DefaultAddr is the server's default ingestion address.
const DefaultAddr = "127.0.0.1:49002"

const defaultQueueSize = 1024

type Option func(*Client)

// WithQueueSize sets how many encoded commands may wait to be sent.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client sends commands on behalf of one project/service pair. It is safe
// for concurrent use.
type Client struct {
	project string
	service string

	addr      net.Addr
	conn      net.PacketConn
	queueSize int
	queue     chan []byte
	logger    *slog.Logger

	dropped   atomic.Uint64
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New resolves addr and starts the sender goroutine.
func New(project, service, addr string, opts ...Option) (*Client, error) {
	c, err := newClient(project, service, addr, opts...)
	if err != nil {
		return nil, err
	}
	c.wg.Add(1)
	go c.drain()
	return c, nil
}

func newClient(project, service, addr string, opts ...Option) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("binding local socket: %w", err)
	}

	c := &Client{
		project:   project,
		service:   service,
		addr:      udpAddr,
		conn:      conn,
		queueSize: defaultQueueSize,
		logger:    slog.Default(),
		closeCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = make(chan []byte, c.queueSize)
	return c, nil
}

func (c *Client) Project() string { return c.project }

func (c *Client) Service() string { return c.service }

// Metric pushes a point value stamped with the current time.
func (c *Client) Metric(name string, value float64) {
	c.Send(models.Command{Metric: &models.Metric{
		ProjectName:     c.project,
		ServiceName:     c.service,
		MetricName:      name,
		MetricTimestamp: now(),
		MetricValue:     value,
	}})
}

// Record pushes a successful observation stamped with the current time.
func (c *Client) Record(record, groupBy string, executionTimeUs uint64) {
	c.RecordWithError(record, groupBy, executionTimeUs, false)
}

func (c *Client) RecordWithError(record, groupBy string, executionTimeUs uint64, failed bool) {
	var flag int64
	if failed {
		flag = 1
	}
	c.Send(models.Command{Record: &models.Record{
		ProjectName:     c.project,
		ServiceName:     c.service,
		RecordName:      record,
		GroupBy:         groupBy,
		Timestamp:       now(),
		ExecutionTimeUs: executionTimeUs,
		Error:           flag,
	}})
}

// Send queues cmd. It never blocks; a full queue or a closed client drops
// the command.
func (c *Client) Send(cmd models.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Error("encoding command", "error", err)
		return
	}

	select {
	case <-c.closeCh:
		c.dropped.Add(1)
		return
	default:
	}

	select {
	case c.queue <- data:
	default:
		c.dropped.Add(1)
	}
}

// Dropped returns how many commands were discarded because the queue was
// full or the client closed.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Close sends whatever is still queued and releases the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
	})
	c.wg.Wait()
	return c.conn.Close()
}

func (c *Client) drain() {
	defer c.wg.Done()

	for {
		select {
		case data := <-c.queue:
			c.write(data)
		case <-c.closeCh:
			for {
				select {
				case data := <-c.queue:
					c.write(data)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(data []byte) {
	if _, err := c.conn.WriteTo(data, c.addr); err != nil {
		c.logger.Debug("sending command", "addr", c.addr.String(), "error", err)
	}
}

// now returns nil when the clock is unusable, leaving the server to stamp
// the observation on arrival.
func now() *models.Timestamp {
	ts, err := models.Now()
	if err != nil {
		return nil
	}
	return &ts
}
