package receiver

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// maxBodySize bounds an OTLP request body after decompression.
const maxBodySize = 16 << 20

// HTTPReceiver handles OTLP/HTTP trace exports.
type HTTPReceiver struct {
	ingester *TraceIngester
	logger   *slog.Logger
	server   *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHTTPReceiver creates a new HTTP receiver.
func NewHTTPReceiver(addr string, ingester *TraceIngester, logger *slog.Logger) *HTTPReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &HTTPReceiver{
		ingester: ingester,
		logger:   logger,
	}

	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return r
}

// Handler returns the receiver's routes.
func (r *HTTPReceiver) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/traces", r.handleTraces)
	return mux
}

// Listen binds the listener.
func (r *HTTPReceiver) Listen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return nil
	}
	lis, err := net.Listen("tcp", r.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	r.listener = lis
	return nil
}

// Start starts the HTTP server.
func (r *HTTPReceiver) Start() error {
	if err := r.Listen(); err != nil {
		return err
	}
	r.mu.Lock()
	lis := r.listener
	r.mu.Unlock()

	r.logger.Info("otlp http server listening", "addr", lis.Addr().String())
	if err := r.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (r *HTTPReceiver) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

func (r *HTTPReceiver) handleTraces(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer req.Body.Close()

	reader := io.Reader(req.Body)
	if req.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(req.Body)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to decompress: %v", err), http.StatusBadRequest)
			return
		}
		defer gz.Close()
		reader = gz
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	// Protobuf is the OTLP default; fall back to JSON.
	var exportReq coltracepb.ExportTraceServiceRequest
	if err := proto.Unmarshal(body, &exportReq); err != nil {
		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if jsonErr := unmarshaler.Unmarshal(body, &exportReq); jsonErr != nil {
			r.logger.Warn("failed to parse traces request", "protobuf_error", err, "json_error", jsonErr)
			http.Error(w, fmt.Sprintf("Failed to parse request: protobuf error: %v, json error: %v", err, jsonErr), http.StatusBadRequest)
			return
		}
	}

	rejected, ingestErr := r.ingester.Ingest(req.Context(), &exportReq)

	resp := &coltracepb.ExportTraceServiceResponse{}
	if rejected > 0 {
		msg := "spans without service.name or project"
		if ingestErr != nil {
			msg = ingestErr.Error()
		}
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: rejected,
			ErrorMessage:  msg,
		}
	}
	r.writeResponse(w, resp)
}

// writeResponse writes a protobuf response.
func (r *HTTPReceiver) writeResponse(w http.ResponseWriter, resp proto.Message) {
	respBytes, err := proto.Marshal(resp)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(respBytes); err != nil {
		r.logger.Debug("writing response", "error", err)
	}
}
