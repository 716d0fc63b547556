package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// GRPCReceiver serves the OTLP trace service over gRPC.
type GRPCReceiver struct {
	coltracepb.UnimplementedTraceServiceServer
	ingester *TraceIngester
	logger   *slog.Logger
	addr     string

	mu       sync.Mutex
	server   *grpc.Server
	listener net.Listener
}

// NewGRPCReceiver creates a new gRPC receiver.
func NewGRPCReceiver(addr string, ingester *TraceIngester, logger *slog.Logger) *GRPCReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCReceiver{
		ingester: ingester,
		logger:   logger,
		addr:     addr,
	}
}

// Listen binds the listener and registers the services.
func (r *GRPCReceiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return nil
	}

	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.listener = lis

	r.server = grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(r.server, r)

	// Reflection for grpcurl
	reflection.Register(r.server)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (r *GRPCReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start starts the gRPC server.
func (r *GRPCReceiver) Start() error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.mu.Lock()
	server, lis := r.server, r.listener
	r.mu.Unlock()

	r.logger.Info("grpc server listening", "addr", lis.Addr().String())
	if err := server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the gRPC server.
func (r *GRPCReceiver) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	server := r.server
	r.mu.Unlock()
	if server == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		server.Stop()
	}
	return nil
}

// Export implements the TraceService Export RPC. Storage failures are
// reported through PartialSuccess rather than failing the export.
func (r *GRPCReceiver) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	rejected, err := r.ingester.Ingest(ctx, req)

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		msg := "spans without service.name or project"
		if err != nil {
			msg = err.Error()
		}
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  msg,
		}
	}
	return resp, nil
}
