package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// MaxDatagramSize bounds a single command.
const MaxDatagramSize = 64 * 1024

// UDPReceiver reads commands from a UDP socket, one datagram at a time, on
// a single goroutine. Failures are logged and never stop the loop.
type UDPReceiver struct {
	addr       string
	dispatcher *Dispatcher
	logger     *slog.Logger

	mu   sync.Mutex
	conn net.PacketConn
}

func NewUDPReceiver(addr string, dispatcher *Dispatcher, logger *slog.Logger) *UDPReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &UDPReceiver{addr: addr, dispatcher: dispatcher, logger: logger}
}

// Listen binds the socket. Start calls it when needed.
func (r *UDPReceiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (r *UDPReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (r *UDPReceiver) Start() error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	r.logger.Info("udp receiver listening", "addr", conn.LocalAddr().String())

	ctx := context.Background()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading datagram: %w", err)
		}
		r.logger.Debug("datagram received", "from", from.String(), "bytes", n)

		if err := r.dispatcher.Handle(ctx, buf[:n]); err != nil {
			r.logger.Error("handling datagram", "from", from.String(), "error", err)
		}
	}
}

// Shutdown closes the socket, which ends Start.
func (r *UDPReceiver) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
