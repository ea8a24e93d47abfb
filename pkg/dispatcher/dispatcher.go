// Package dispatcher implements the ActionDispatcher: delivery of triggers
// produced by the PredicateEngine to each predicate's configured HTTP sink,
// with bounded exponential backoff retry and at-most-cap/at-least-once-
// within-cap semantics (spec.md §4.6).
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"golang.org/x/sync/errgroup"
)

// Job pairs a Trigger with the predicate it was produced for; the
// dispatcher has no registry of its own, so the Observer resolves the
// predicate before handing the pair off.
type Job struct {
	Predicate *predicate.Predicate
	Trigger   predicate.Trigger
}

// Dispatcher runs its own worker pool, independent of the Observer's
// single-threaded command loop. It keeps no durable queue: a restart loses
// any trigger still in flight or still queued.
type Dispatcher struct {
	cfg    *config.DispatcherConfig
	log    *logger.Logger
	client *http.Client
	jobs   chan Job
}

// NewDispatcher builds a Dispatcher that delivers at most cfg.Workers
// triggers concurrently. The caller must call Run to start workers and
// Close once no further triggers will be dispatched.
func NewDispatcher(cfg *config.DispatcherConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: cfg.RequestTimeout.Duration,
		},
		jobs: make(chan Job, cfg.Workers*4),
	}
}

// Dispatch enqueues a job without blocking. If the queue is saturated the
// trigger is dropped and counted; the ActionDispatcher must never apply
// backpressure to the Observer.
func (d *Dispatcher) Dispatch(job Job) error {
	select {
	case d.jobs <- job:
		return nil
	default:
		queueDroppedInc(job.Predicate.Name)
		d.log.Warnw("dispatcher queue full, dropping trigger",
			"predicate", job.Predicate.Name, "predicate_uuid", job.Predicate.UUID)
		return ErrQueueFull
	}
}

// Run starts cfg.Workers delivery workers and blocks until ctx is cancelled
// and every worker has returned. Workers observe ctx for both queue receives
// and in-flight HTTP calls; cancelling ctx abandons any trigger mid-retry.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			return d.worker(gctx)
		})
	}
	return g.Wait()
}

// Close stops accepting new jobs. It must only be called after the producer
// side (the Observer) is certain no further Dispatch calls will occur.
func (d *Dispatcher) Close() {
	close(d.jobs)
}

func (d *Dispatcher) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-d.jobs:
			if !ok {
				return nil
			}
			d.deliver(ctx, job)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	start := time.Now()
	defer func() {
		deliveryDurationObserve(job.Predicate.Name, time.Since(start))
	}()

	payload := BuildWebhookPayload(job.Predicate, job.Trigger)
	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Errorw("dispatcher: failed to marshal webhook payload", "predicate", job.Predicate.Name, "err", err)
		return
	}

	err = deliverWithRetry(ctx, &d.cfg.Retry, job.Predicate.Name, func() error {
		return d.post(ctx, job.Predicate.Action, body)
	})
	if err != nil {
		deliveryExhaustedInc(job.Predicate.Name)
		d.log.Errorw("dispatcher: delivery exhausted retry budget, dropping trigger",
			"predicate", job.Predicate.Name, "predicate_uuid", job.Predicate.UUID, "err", err)
		return
	}

	deliverySuccessInc(job.Predicate.Name)
}

func (d *Dispatcher) post(ctx context.Context, action predicate.HookAction, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, action.Method, action.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dispatcher: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if action.AuthorizationHeader != "" {
		req.Header.Set("Authorization", action.AuthorizationHeader)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dispatcher: transport failure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dispatcher: non-2xx response: %d", resp.StatusCode)
	}
	return nil
}
