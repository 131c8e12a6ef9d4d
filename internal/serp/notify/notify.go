// Package notify publishes derived alerts as JSON events to Kafka so
// downstream consumers (dashboards, pagers) can react without re-deriving
// them. Publishing is buffered and non-blocking: the alert feed response
// never waits on the broker, and events are dropped with a warning when the
// buffer is full.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/rankpulse/rankpulse/internal/serp/alert"
	"github.com/rankpulse/rankpulse/pkg/kafka"
	"github.com/rankpulse/rankpulse/pkg/logger"
	"github.com/rankpulse/rankpulse/pkg/resilience"
)

// Event is the wire shape of one published alert.
type Event struct {
	ProjectID   string      `json:"project_id"`
	Alert       alert.Alert `json:"alert"`
	RequestedAt time.Time   `json:"requested_at"`
}

// Publisher drains a bounded buffer of alert events into Kafka.
type Publisher struct {
	producer *kafka.Producer
	eventCh  chan Event
	logger   *slog.Logger
	done     chan struct{}
}

// New creates a Publisher with the given buffer size.
func New(producer *kafka.Producer, bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Publisher{
		producer: producer,
		eventCh:  make(chan Event, bufferSize),
		logger:   logger.WithComponent("alert-publisher"),
		done:     make(chan struct{}),
	}
}

// Start launches the drain loop. It runs until ctx is cancelled or Close
// is called.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case event, ok := <-p.eventCh:
				if !ok {
					return
				}
				p.publish(ctx, event)
			case <-ctx.Done():
				p.drainRemaining()
				return
			}
		}
	}()
	p.logger.Info("alert publisher started", "buffer_size", cap(p.eventCh))
}

// Track enqueues one alert event without blocking.
func (p *Publisher) Track(event Event) {
	select {
	case p.eventCh <- event:
	default:
		p.logger.Warn("alert event dropped (buffer full)", "project_id", event.ProjectID)
	}
}

// Close stops accepting events and waits for the drain loop to finish.
func (p *Publisher) Close() {
	close(p.eventCh)
	<-p.done
}

func (p *Publisher) publish(ctx context.Context, event Event) {
	err := resilience.Retry(ctx, "publish-alert-event", resilience.RetryConfig{}, func() error {
		return p.producer.Publish(ctx, kafka.Event{
			Key:   event.ProjectID,
			Value: event,
		})
	})
	if err != nil {
		p.logger.Error("failed to publish alert event", "project_id", event.ProjectID, "error", err)
	}
}

func (p *Publisher) drainRemaining() {
	for {
		select {
		case event, ok := <-p.eventCh:
			if !ok {
				return
			}
			p.publish(context.Background(), event)
		default:
			return
		}
	}
}
