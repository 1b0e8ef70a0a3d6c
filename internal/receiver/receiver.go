// Package receiver accepts log events over HTTP and the beats (lumberjack v2)
// protocol and hands them to the ingest pipeline.
package receiver

import (
	"context"

	"github.com/szibis/sa-log-shipper/internal/ingest"
)

// EventSink consumes decoded events. *ingest.Pipeline implements it.
type EventSink interface {
	MultiReceive(ctx context.Context, events []ingest.Event) error
}

// eventFromMap builds an Event from a decoded beats or HTTP object. The
// "message" field becomes the message; the object is kept as the fields.
func eventFromMap(m map[string]interface{}) ingest.Event {
	msg, _ := m["message"].(string)
	return ingest.Event{Message: msg, Fields: m}
}
