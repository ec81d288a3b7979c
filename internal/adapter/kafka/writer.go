package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-damage-patches/internal/config"
	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/observability"
)

const (
	queueSize    = 256
	maxBatch     = 100
	writeTimeout = 10 * time.Second
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher announces written patches on a Kafka topic. It implements
// domain.Observer; events are queued and written in batches by a background
// goroutine. Observe never blocks: when the queue is full the event is
// dropped and counted.
type Publisher struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
	events chan domain.ProgressEvent
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewPublisher creates a Kafka producer for the configured patch topic.
func NewPublisher(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaPatchTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newPublisher(w, queueSize, metrics, logger)
}

func newPublisher(w messageWriter, queue int, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	p := &Publisher{
		writer:  w,
		metrics: metrics,
		logger:  logger,
		events:  make(chan domain.ProgressEvent, queue),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Observe queues patch_written events and ignores every other kind. Events
// observed after Close or while the queue is full are dropped.
func (p *Publisher) Observe(ev domain.ProgressEvent) {
	if ev.Kind != domain.ProgressPatchWritten {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.PatchEventsDropped.Inc()
		p.logger.Warn("patch event dropped after close", "path", ev.Path)
		return
	}
	select {
	case p.events <- ev:
	default:
		p.metrics.PatchEventsDropped.Inc()
		p.logger.Warn("patch event queue full, dropping event", "path", ev.Path)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	batch := make([]domain.ProgressEvent, 0, maxBatch)
	for ev := range p.events {
		batch = append(batch[:0], ev)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-p.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		p.publish(batch)
	}
}

func (p *Publisher) publish(batch []domain.ProgressEvent) {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, ev := range batch {
		msg, err := serializeToMessage(ev)
		if err != nil {
			p.logger.Error("serialize patch event failed", "path", ev.Path, "error", err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish patch events failed", "count", len(msgs), "error", err)
	}
}

// Close flushes queued events and closes the underlying writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

// messageKey groups a patch's messages by event and phase.
func messageKey(ev domain.ProgressEvent) string {
	return fmt.Sprintf("%s/%s/%s", ev.Event, ev.Phase, filepath.Base(ev.Path))
}

// serializeToMessage marshals a progress event into a Kafka message.
func serializeToMessage(ev domain.ProgressEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize progress event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(messageKey(ev)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(ev.RunID)},
			{Key: "event_kind", Value: []byte(ev.Kind)},
			{Key: "produced_at", Value: []byte(ev.At.Format(time.RFC3339))},
		},
	}, nil
}
