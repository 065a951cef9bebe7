package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robso86/jsonschema-mapper/internal/importer"
	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/kafka"
	"github.com/robso86/jsonschema-mapper/pkg/metrics"
)

// Publisher writes a batch of events. *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type CollectorOptions struct {
	BatchSize     int
	FlushInterval time.Duration
	// IncludeModel attaches the normalized model to success events.
	IncludeModel bool
	Metrics      *metrics.Metrics
}

// Collector buffers completion events and publishes them in batches, when
// the buffer reaches BatchSize or every FlushInterval. It is a
// manager.Listener.
type Collector struct {
	publisher     Publisher
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	includeModel  bool
	metrics       *metrics.Metrics
	logger        *slog.Logger
	done          chan struct{}
}

func NewCollector(publisher Publisher, opts CollectorOptions) *Collector {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, opts.BatchSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		includeModel:  opts.IncludeModel,
		metrics:       opts.Metrics,
		logger:        slog.Default().With("component", "event-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It returns immediately; the loop ends
// with a final flush when ctx is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				c.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("event collector started", "batch_size", c.batchSize, "flush_interval", c.flushInterval)
}

// Close waits for the flush loop started by Start to finish.
func (c *Collector) Close() {
	<-c.done
}

// ImportCompleted queues an event for imp.
func (c *Collector) ImportCompleted(uri string, imp *importer.Importer) {
	c.Track(NewImportEvent(uri, imp, c.includeModel))
}

// Track queues ev, keyed by its URI so events for one document share a
// partition. A full batch is flushed in the background.
func (c *Collector) Track(ev ImportEvent) {
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{
		Key:     ev.URI,
		Value:   ev,
		Headers: map[string]string{"import-id": ev.ImportID, "status": string(ev.Status)},
	})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		go c.Flush(context.Background())
	}
}

func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Flush publishes everything buffered. A failed batch is put back at the
// front of the buffer, which is capped at three batches.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("event flush failed", "batch_size", len(batch), "error", err)
		c.count("failed", len(batch))
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			dropped := len(c.buffer) - limit
			c.buffer = c.buffer[:limit]
			c.logger.Warn("event buffer overflow, events dropped", "dropped", dropped)
			c.count("dropped", dropped)
		}
		c.mu.Unlock()
		return
	}
	c.count("published", len(batch))
	c.logger.Debug("events flushed", "events", len(batch))
}

func (c *Collector) count(status string, n int) {
	if c.metrics != nil {
		c.metrics.EventsPublishedTotal.WithLabelValues(status).Add(float64(n))
	}
}

// NewImportEvent summarizes a completed importer.
func NewImportEvent(uri string, imp *importer.Importer, includeModel bool) ImportEvent {
	ev := ImportEvent{
		ImportID:    imp.ID(),
		URI:         uri,
		Status:      StatusSuccess,
		DurationMs:  imp.Duration().Milliseconds(),
		CompletedAt: time.Now().UTC(),
	}
	if err := imp.Err(); err != nil {
		ev.Status = StatusFailed
		ev.Error = err.Error()
		ev.ErrorKind = importerrors.KindOf(err).String()
		return ev
	}
	m := imp.Model()
	ev.Properties = len(m.Properties)
	ev.Definitions = len(m.Definitions)
	ev.IDs = len(m.IDs)
	if includeModel {
		ev.Model = m
	}
	return ev
}
