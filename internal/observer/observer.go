// Package observer implements the Observer: the single-threaded command
// loop that owns both chains' BlockPools and the shared predicate registry,
// per spec.md §4.5. It is the only component that mutates pool state; every
// other component reaches the pools and registry exclusively through
// commands sent here.
package observer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/blockpool"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/goran-ethernal/chainobserver/pkg/config"
	"github.com/goran-ethernal/chainobserver/pkg/dispatcher"
	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/google/uuid"
)

type commandKind int

const (
	commandIngestL1 commandKind = iota
	commandIngestL2
	commandRegister
	commandUnregister
	commandTerminate
)

type command struct {
	kind commandKind

	block     chain.Block
	receiptID uint64

	pred     *predicate.Predicate
	unregID  uuid.UUID
	replyErr chan error

	termAck chan struct{}
}

// Observer is the command loop described by spec.md §4.5. It is not safe
// for concurrent use from outside its own Run goroutine; every interaction
// happens by sending a command and, where a caller needs a result, waiting
// on a reply channel.
type Observer struct {
	log *logger.Logger

	commands chan command

	l1Pool *blockpool.BlockPool // bitcoin
	l2Pool *blockpool.BlockPool // stacks

	registry   *predicate.Registry
	l1Engine   *predicate.Engine
	l2Engine   *predicate.Engine
	dispatcher *dispatcher.Dispatcher

	subscribersMu        sync.Mutex
	subscribers          []chan blockpool.ChainEvent
	subscriberBufferSize int

	drainDeadline time.Duration
	receiptSeq    atomic.Uint64

	terminating atomic.Bool
}

// New builds an Observer wired to both chains' pools, a single predicate
// registry shared by both per-chain engines, and the ActionDispatcher that
// delivers their triggers.
func New(
	cfg *config.Config,
	l1Pool *blockpool.BlockPool,
	l2Pool *blockpool.BlockPool,
	registry *predicate.Registry,
	dispatch *dispatcher.Dispatcher,
	log *logger.Logger,
) *Observer {
	log = log.WithComponent("observer")
	return &Observer{
		log:                  log,
		commands:             make(chan command, cfg.Observer.CommandBufferSize),
		l1Pool:               l1Pool,
		l2Pool:               l2Pool,
		registry:             registry,
		l1Engine:             predicate.NewEngine(registry, predicate.ChainBitcoin, log),
		l2Engine:             predicate.NewEngine(registry, predicate.ChainStacks, log),
		dispatcher:           dispatch,
		subscriberBufferSize: cfg.Observer.SubscriberBufferSize,
		drainDeadline:        cfg.Observer.TerminateDrainDeadline.Duration,
	}
}

// Subscribe registers a new external event subscriber channel. Events are
// delivered in order while the subscriber keeps up; once its buffer is
// full, further events for it are dropped and counted rather than blocking
// ingestion (spec.md §6).
func (o *Observer) Subscribe() <-chan blockpool.ChainEvent {
	ch := make(chan blockpool.ChainEvent, o.subscriberBufferSize)
	o.subscribersMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subscribersMu.Unlock()
	return ch
}

// IngestL1Block enqueues a bitcoin block for processing and returns a
// receipt id correlating to whatever ChainEvent it eventually produces.
// It blocks only on the bounded command channel, never on pool processing.
func (o *Observer) IngestL1Block(ctx context.Context, block chain.Block) (uint64, error) {
	return o.ingest(ctx, commandIngestL1, block)
}

// IngestL2Block enqueues a stacks block for processing.
func (o *Observer) IngestL2Block(ctx context.Context, block chain.Block) (uint64, error) {
	return o.ingest(ctx, commandIngestL2, block)
}

func (o *Observer) ingest(ctx context.Context, kind commandKind, block chain.Block) (uint64, error) {
	if o.terminating.Load() {
		return 0, fmt.Errorf("observer: shutting down, ingestion rejected")
	}
	receiptID := o.receiptSeq.Add(1)
	cmd := command{kind: kind, block: block, receiptID: receiptID}
	select {
	case o.commands <- cmd:
		return receiptID, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Register inserts pred into the registry and, if its start_block precedes
// the canonical tip, schedules a backfill replay. It blocks until the
// Observer loop has processed the registration so that callers (the control
// API) can surface PredicateInvalid synchronously.
func (o *Observer) Register(ctx context.Context, pred *predicate.Predicate) error {
	if o.terminating.Load() {
		return fmt.Errorf("observer: shutting down, registration rejected")
	}
	reply := make(chan error, 1)
	cmd := command{kind: commandRegister, pred: pred, replyErr: reply}
	select {
	case o.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes a predicate. It is idempotent.
func (o *Observer) Unregister(ctx context.Context, id uuid.UUID) error {
	reply := make(chan error, 1)
	cmd := command{kind: commandUnregister, unregID: id, replyErr: reply}
	select {
	case o.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate enqueues a Terminate command behind any already-pending work
// and waits for the Observer loop to drain and exit, up to the configured
// drain deadline (spec.md §4.5 step 4).
func (o *Observer) Terminate(ctx context.Context) error {
	o.terminating.Store(true)
	ack := make(chan struct{})
	cmd := command{kind: commandTerminate, termAck: ack}
	select {
	case o.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the Observer's single-threaded command loop. It returns when ctx
// is cancelled or a Terminate command has fully drained.
func (o *Observer) Run(ctx context.Context) error {
	o.log.Info("observer command loop starting")
	for {
		select {
		case <-ctx.Done():
			o.log.Info("observer command loop cancelled")
			return ctx.Err()
		case cmd := <-o.commands:
			if cmd.kind == commandTerminate {
				o.drain(cmd)
				return nil
			}
			o.handle(cmd)
		}
	}
}

// drain keeps processing already-enqueued commands up to the drain
// deadline, then exits. New commands cannot arrive once terminating is set,
// so an empty queue means shutdown is complete.
func (o *Observer) drain(termCmd command) {
	deadline := time.NewTimer(o.drainDeadline)
	defer deadline.Stop()

	for {
		select {
		case cmd := <-o.commands:
			o.handle(cmd)
		case <-deadline.C:
			o.log.Warn("terminate drain deadline exceeded, forcing exit")
			close(termCmd.termAck)
			return
		default:
			o.log.Info("command queue drained, exiting")
			close(termCmd.termAck)
			return
		}
	}
}

func (o *Observer) handle(cmd command) {
	switch cmd.kind {
	case commandIngestL1:
		o.processBlock(o.l1Pool, o.l1Engine, cmd.block)
	case commandIngestL2:
		o.processBlock(o.l2Pool, o.l2Engine, cmd.block)
	case commandRegister:
		cmd.replyErr <- o.register(cmd.pred)
	case commandUnregister:
		o.registry.Unregister(cmd.unregID)
		cmd.replyErr <- nil
	}
}

func (o *Observer) processBlock(pool *blockpool.BlockPool, engine *predicate.Engine, block chain.Block) {
	event, err := pool.ProcessBlock(block)
	if err != nil {
		// MissingBlockBody: an invariant breach contained to this step, per
		// spec.md §7. Pool state is otherwise already committed.
		o.log.Errorw("aborting event generation for this block", "block", block.Identifier(), "err", err)
		return
	}
	if event == nil {
		return
	}
	o.onEvent(engine, *event)
}

func (o *Observer) onEvent(engine *predicate.Engine, event blockpool.ChainEvent) {
	for _, trigger := range engine.Evaluate(event) {
		pred, ok := o.registry.Get(trigger.PredicateUUID)
		if !ok {
			continue
		}
		if err := o.dispatcher.Dispatch(dispatcher.Job{Predicate: pred, Trigger: trigger}); err != nil {
			o.log.Warnw("failed to enqueue trigger", "predicate_uuid", pred.UUID, "err", err)
		}
	}
	o.broadcast(event)
}

func (o *Observer) broadcast(event blockpool.ChainEvent) {
	o.subscribersMu.Lock()
	defer o.subscribersMu.Unlock()

	for _, sub := range o.subscribers {
		select {
		case sub <- event:
		default:
			eventsDroppedInc()
			o.log.Warn("subscriber buffer full, dropping event")
		}
	}
}

func (o *Observer) register(pred *predicate.Predicate) error {
	if err := o.registry.Register(pred); err != nil {
		return err
	}

	pool := o.poolFor(pred.Chain)
	if pool == nil || pred.StartBlock == nil {
		return nil
	}

	tip := pool.CanonicalSegment().Tip()
	if *pred.StartBlock > tip.Index {
		return nil
	}

	o.backfill(pred, pool)
	return nil
}

func (o *Observer) poolFor(chainName predicate.Chain) *blockpool.BlockPool {
	switch chainName {
	case predicate.ChainBitcoin:
		return o.l1Pool
	case predicate.ChainStacks:
		return o.l2Pool
	default:
		return nil
	}
}

// backfill replays the already-canonical segment from pred.StartBlock to
// the current tip as a single synthetic Append event, evaluated only
// against this predicate. Spec.md §4.5 step 3.
func (o *Observer) backfill(pred *predicate.Predicate, pool *blockpool.BlockPool) {
	start := uint64(0)
	if pred.StartBlock != nil {
		start = *pred.StartBlock
	}

	blocks := pool.CanonicalBlocksFrom(start)
	if len(blocks) == 0 {
		return
	}

	o.registry.SetStatus(pred.UUID, predicate.StatusScanning)

	// Evaluate against a scoped registry holding only a clone of pred, so
	// replaying history doesn't run every other live predicate against it.
	// The clone's Occurrences is folded back into the real, registry-owned
	// pred afterward, since that pointer is what the engine's live
	// evaluation and expiry bookkeeping touch going forward.
	clone := *pred
	scoped := predicate.NewRegistry()
	_ = scoped.Register(&clone)
	syntheticEngine := predicate.NewEngine(scoped, pred.Chain, o.log)
	event := blockpool.ChainEvent{Kind: blockpool.EventAppend, NewBlocks: blocks, Synthetic: true}

	triggers := syntheticEngine.Evaluate(event)
	for _, trigger := range triggers {
		if err := o.dispatcher.Dispatch(dispatcher.Job{Predicate: pred, Trigger: trigger}); err != nil {
			o.log.Warnw("failed to enqueue backfill trigger", "predicate_uuid", pred.UUID, "err", err)
		}
	}
	pred.Occurrences += uint64(len(triggers))

	tip := pool.CanonicalSegment().Tip()
	if o.registry.ExpireIfDue(pred.UUID, tip.Index) {
		return
	}
	o.registry.SetStatus(pred.UUID, predicate.StatusStreaming)
}
