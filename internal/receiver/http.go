package receiver

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/szibis/sa-log-shipper/internal/auth"
	"github.com/szibis/sa-log-shipper/internal/compression"
	"github.com/szibis/sa-log-shipper/internal/ingest"
	"github.com/szibis/sa-log-shipper/internal/logging"
)

// DefaultMaxRequestBodySize bounds decoded request bodies.
const DefaultMaxRequestBodySize = 16 << 20

// DefaultHTTPPath is where events are posted.
const DefaultHTTPPath = "/v1/events"

// HTTPConfig holds HTTP receiver configuration.
type HTTPConfig struct {
	Addr               string
	Path               string
	MaxRequestBodySize int64
	ReadTimeout        time.Duration
	ReadHeaderTimeout  time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	// TLS serves HTTPS when non-nil.
	TLS *tls.Config
	// Auth guards the events path.
	Auth auth.ServerConfig
}

// HTTPReceiver receives events as NDJSON or a JSON array.
//
// Each element is either an envelope {"message": ..., "fields": {...}} or a
// bare JSON object, which is shipped as the message itself.
type HTTPReceiver struct {
	server  *http.Server
	sink    EventSink
	addr    string
	maxBody int64
	tls     bool
}

// NewHTTP creates an HTTP receiver.
func NewHTTP(cfg HTTPConfig, sink EventSink) *HTTPReceiver {
	r := &HTTPReceiver{
		sink:    sink,
		addr:    cfg.Addr,
		maxBody: cfg.MaxRequestBodySize,
		tls:     cfg.TLS != nil,
	}
	if r.maxBody <= 0 {
		r.maxBody = DefaultMaxRequestBodySize
	}

	path := cfg.Path
	if path == "" {
		path = DefaultHTTPPath
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, r.handleEvents)
	handler := auth.HTTPMiddleware(cfg.Auth, mux)

	readHeaderTimeout := cfg.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 1 * time.Minute
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 1 * time.Minute
	}

	r.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		TLSConfig:         cfg.TLS,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return r
}

// Handler returns the receiver's HTTP handler.
func (r *HTTPReceiver) Handler() http.Handler {
	return r.server.Handler
}

func (r *HTTPReceiver) handleEvents(w http.ResponseWriter, req *http.Request) {
	receiverRequestsTotal.WithLabelValues("http").Inc()

	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer req.Body.Close()

	var body io.Reader = http.MaxBytesReader(w, req.Body, r.maxBody)
	if enc := req.Header.Get("Content-Encoding"); enc != "" {
		t, err := compression.ParseType(enc)
		if err != nil {
			receiverErrorsTotal.WithLabelValues("decompress").Inc()
			http.Error(w, "Unsupported content encoding", http.StatusUnsupportedMediaType)
			return
		}
		dr, err := compression.NewReader(body, t)
		if err != nil {
			receiverErrorsTotal.WithLabelValues("decompress").Inc()
			http.Error(w, "Failed to decompress body", http.StatusBadRequest)
			return
		}
		defer dr.Close()
		// Bound the decoded size too.
		body = io.LimitReader(dr, r.maxBody+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			receiverErrorsTotal.WithLabelValues("too_large").Inc()
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		receiverErrorsTotal.WithLabelValues("read").Inc()
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > r.maxBody {
		receiverErrorsTotal.WithLabelValues("too_large").Inc()
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	events, err := DecodeEvents(data)
	if err != nil {
		receiverErrorsTotal.WithLabelValues("decode").Inc()
		logging.Warn("failed to decode events request", logging.F("error", err.Error()))
		http.Error(w, "Failed to decode events", http.StatusBadRequest)
		return
	}

	if err := r.sink.MultiReceive(req.Context(), events); err != nil {
		receiverErrorsTotal.WithLabelValues("buffer").Inc()
		logging.Warn("failed to buffer events", logging.F("error", err.Error()))
		http.Error(w, "Shipper unavailable", http.StatusServiceUnavailable)
		return
	}
	receiverEventsTotal.WithLabelValues("http").Add(float64(len(events)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"accepted": len(events)})
}

// DecodeEvents parses a JSON array or newline-delimited JSON into events.
// NDJSON lines that are not JSON objects are kept as raw messages so the
// pipeline counts them as parse errors; a malformed array fails as a whole.
func DecodeEvents(data []byte) ([]ingest.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		events := make([]ingest.Event, 0, len(raws))
		for _, raw := range raws {
			events = append(events, decodeEvent(raw))
		}
		return events, nil
	}

	var events []ingest.Event
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), len(trimmed)+1)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		events = append(events, decodeEvent(append([]byte(nil), line...)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return events, nil
}

// decodeEvent unwraps an envelope. Anything else is shipped as the message.
func decodeEvent(raw []byte) ingest.Event {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || !isEnvelope(obj) {
		return ingest.Event{Message: string(raw)}
	}

	ev := ingest.Event{}
	var s string
	if err := json.Unmarshal(obj["message"], &s); err == nil {
		ev.Message = s
	} else {
		ev.Message = string(obj["message"])
	}
	if f, ok := obj["fields"]; ok {
		dec := json.NewDecoder(bytes.NewReader(f))
		dec.UseNumber()
		if err := dec.Decode(&ev.Fields); err != nil {
			// The message is still shipped, without routing metadata.
			ev.Fields = nil
			receiverErrorsTotal.WithLabelValues("fields").Inc()
			logging.Warn("ignoring malformed event fields", logging.F(
				"error", err.Error(),
				"bytes", len(f),
			))
		}
	}
	return ev
}

func isEnvelope(obj map[string]json.RawMessage) bool {
	if _, ok := obj["message"]; !ok {
		return false
	}
	for k := range obj {
		if k != "message" && k != "fields" {
			return false
		}
	}
	return true
}

// Start starts the HTTP server.
func (r *HTTPReceiver) Start() error {
	logging.Info("HTTP receiver started", logging.F("addr", r.addr, "tls", r.tls))
	if r.tls {
		// Certificates come from TLSConfig.
		return r.server.ListenAndServeTLS("", "")
	}
	return r.server.ListenAndServe()
}

// Serve serves on an existing listener.
func (r *HTTPReceiver) Serve(l net.Listener) error {
	logging.Info("HTTP receiver started", logging.F("addr", l.Addr().String(), "tls", r.tls))
	if r.tls {
		return r.server.ServeTLS(l, "", "")
	}
	return r.server.Serve(l)
}

// Stop gracefully stops the HTTP server.
func (r *HTTPReceiver) Stop(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}
