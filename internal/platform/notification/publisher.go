// Package notification fans clinical events out to nurse-station and
// bedside consumers over Redis streams and MQTT.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Event is one outbound message. Data is the JSON-encoded payload.
type Event struct {
	Type string
	Key  string
	Data []byte
	At   time.Time
}

// Publisher delivers events to one transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, evt Event) error
}

// Fanout publishes to every configured publisher. Delivery is best-effort:
// each failure is logged and reported through onFailure, and the joined
// error is returned for callers that care.
type Fanout struct {
	publishers []Publisher
	logger     zerolog.Logger
	onFailure  func(publisher string)
	timeout    time.Duration
}

func NewFanout(logger zerolog.Logger, publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers, logger: logger, timeout: 2 * time.Second}
}

// OnFailure registers a hook called with the publisher name on every failure.
func (f *Fanout) OnFailure(fn func(publisher string)) *Fanout {
	f.onFailure = fn
	return f
}

// Len reports how many publishers are configured.
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}

func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	if f == nil {
		return nil
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	var errs []error
	for _, p := range f.publishers {
		pctx, cancel := context.WithTimeout(ctx, f.timeout)
		err := p.Publish(pctx, evt)
		cancel()
		if err == nil {
			continue
		}
		f.logger.Error().Err(err).
			Str("publisher", p.Name()).
			Str("event_type", evt.Type).
			Str("key", evt.Key).
			Msg("failed to publish event")
		if f.onFailure != nil {
			f.onFailure(p.Name())
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return errors.Join(errs...)
}
