package receiver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/elastic/go-lumber/lj"
	lumber "github.com/elastic/go-lumber/server/v2"
	"github.com/szibis/sa-log-shipper/internal/ingest"
	"github.com/szibis/sa-log-shipper/internal/logging"
	tlspkg "github.com/szibis/sa-log-shipper/internal/tls"
)

// Beats receiver defaults.
const (
	DefaultBeatsKeepalive = 3 * time.Second
	DefaultBeatsTimeout   = 30 * time.Second
)

// BeatsConfig holds beats receiver configuration.
type BeatsConfig struct {
	Addr      string
	Keepalive time.Duration
	Timeout   time.Duration
	// TLS wraps the listener when non-nil.
	TLS *tls.Config
}

// BeatsReceiver accepts batches from filebeat and other beats. A batch is
// ACKed only after every event in it was handed to the buffer, so beats
// resend batches that were not accepted.
type BeatsReceiver struct {
	cfg  BeatsConfig
	sink EventSink

	mu     sync.Mutex
	server *lumber.Server
}

// NewBeats creates a beats receiver.
func NewBeats(cfg BeatsConfig, sink EventSink) *BeatsReceiver {
	if cfg.Keepalive == 0 {
		cfg.Keepalive = DefaultBeatsKeepalive
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultBeatsTimeout
	}
	return &BeatsReceiver{cfg: cfg, sink: sink}
}

// Start listens on the configured address and serves until ctx is done or
// Stop is called.
func (r *BeatsReceiver) Start(ctx context.Context) error {
	l, err := tlspkg.Listen(r.cfg.Addr, r.cfg.TLS)
	if err != nil {
		return err
	}
	return r.Serve(ctx, l)
}

// Serve serves on l until ctx is done or Stop is called.
func (r *BeatsReceiver) Serve(ctx context.Context, l net.Listener) error {
	srv, err := lumber.NewWithListener(l,
		lumber.Keepalive(r.cfg.Keepalive),
		lumber.Timeout(r.cfg.Timeout),
	)
	if err != nil {
		l.Close()
		return err
	}
	r.mu.Lock()
	r.server = srv
	r.mu.Unlock()

	logging.Info("beats receiver started", logging.F("addr", l.Addr().String()))

	batches := srv.ReceiveChan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			r.handleBatch(ctx, batch)
		}
	}
}

func (r *BeatsReceiver) handleBatch(ctx context.Context, batch *lj.Batch) {
	receiverRequestsTotal.WithLabelValues("beats").Inc()

	events := make([]ingest.Event, 0, len(batch.Events))
	for _, raw := range batch.Events {
		m, ok := raw.(map[string]interface{})
		if !ok {
			// Still counted by the pipeline as a parse error.
			events = append(events, ingest.Event{})
			continue
		}
		events = append(events, eventFromMap(m))
	}

	if err := r.sink.MultiReceive(ctx, events); err != nil {
		receiverErrorsTotal.WithLabelValues("buffer").Inc()
		logging.Warn("beats batch not accepted", logging.F(
			"events", len(events),
			"error", err.Error(),
		))
		return
	}
	receiverEventsTotal.WithLabelValues("beats").Add(float64(len(events)))
	batch.ACK()
}

// Stop closes the listener and all beats connections.
func (r *BeatsReceiver) Stop() error {
	r.mu.Lock()
	srv := r.server
	r.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Close()
}
