package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clearfab/gateway/internal/monitoring"
)

// Repo is the slice of the datastore the drainer needs.
type Repo interface {
	ClaimBatch(ctx context.Context, service string, limit int, now time.Time) ([]*Message, error)
	MarkDone(ctx context.Context, messageID string, now time.Time) error
	MarkFailed(ctx context.Context, m *Message, cause error, now time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	DepthByService(ctx context.Context) (map[string]int, error)
}

// Resubmitter pushes a parked message back through the flow engine.
type Resubmitter interface {
	Resubmit(ctx context.Context, m *Message) error
}

// Drainer claims batches of recoverable messages and resubmits them through
// a bounded worker pool.
type Drainer struct {
	repo    Repo
	engine  Resubmitter
	workers int
	metrics *monitoring.Metrics
	logger  *log.Logger
}

func NewDrainer(repo Repo, engine Resubmitter, workers int, metrics *monitoring.Metrics) *Drainer {
	if workers <= 0 {
		workers = 5
	}
	return &Drainer{
		repo:    repo,
		engine:  engine,
		workers: workers,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[QUEUE] ", log.LstdFlags),
	}
}

// Drain claims one batch (optionally narrowed to a single service) and
// resubmits every message. It returns how many were claimed.
func (d *Drainer) Drain(ctx context.Context, service string) (int, error) {
	now := time.Now().UTC()
	batch, err := d.repo.ClaimBatch(ctx, service, 100, now)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	d.logger.Printf("draining %d message(s) service=%q", len(batch), service)

	jobs := make(chan *Message)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				d.resubmit(ctx, m)
			}
		}()
	}
	for _, m := range batch {
		jobs <- m
	}
	close(jobs)
	wg.Wait()

	d.refreshDepth(ctx)
	return len(batch), nil
}

func (d *Drainer) resubmit(ctx context.Context, m *Message) {
	err := d.engine.Resubmit(ctx, m)
	now := time.Now().UTC()
	if err != nil {
		d.logger.Printf("resubmit failed message=%s service=%s: %v", m.MessageID, m.ServiceName, err)
		if markErr := d.repo.MarkFailed(ctx, m, err, now); markErr != nil {
			d.logger.Printf("failed to mark message %s failed: %v", m.MessageID, markErr)
		}
		d.observe(m.ServiceName, "failure")
		return
	}
	if markErr := d.repo.MarkDone(ctx, m.MessageID, now); markErr != nil {
		d.logger.Printf("failed to mark message %s done: %v", m.MessageID, markErr)
	}
	d.observe(m.ServiceName, "success")
}

// ExpireOverdue transitions every message past its deadline to EXPIRED.
func (d *Drainer) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := d.repo.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Printf("expired %d overdue message(s)", n)
		if d.metrics != nil {
			d.metrics.QueueExpired.Add(float64(n))
		}
		d.refreshDepth(ctx)
	}
	return n, nil
}

func (d *Drainer) observe(service, result string) {
	if d.metrics != nil {
		d.metrics.QueueDrained.WithLabelValues(service, result).Inc()
	}
}

func (d *Drainer) refreshDepth(ctx context.Context) {
	if d.metrics == nil {
		return
	}
	depths, err := d.repo.DepthByService(ctx)
	if err != nil {
		return
	}
	for service, n := range depths {
		d.metrics.QueueDepth.WithLabelValues(service).Set(float64(n))
	}
}
