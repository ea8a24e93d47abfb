// Package predicate implements the chainhook predicate registry and matcher
// evaluation: user-registered patterns ("chainhooks") matched against the
// canonical stream to produce triggers for the ActionDispatcher.
package predicate

import (
	"time"

	"github.com/google/uuid"
)

// Chain names the anchored chain a predicate is scoped to.
type Chain string

const (
	ChainBitcoin Chain = "bitcoin"
	ChainStacks  Chain = "stacks"
)

// Status tracks a predicate's lifecycle, reported for operator visibility.
type Status string

const (
	// StatusNew is set at registration, before the engine has evaluated any
	// event against the predicate.
	StatusNew Status = "new"
	// StatusScanning is set while a backfill replay is in progress.
	StatusScanning Status = "scanning"
	// StatusStreaming is set once the predicate is caught up and evaluated
	// against live canonical events.
	StatusStreaming Status = "streaming"
	// StatusExpired is set once end_block or max_triggers is reached; the
	// predicate is removed from the registry when this status is recorded.
	StatusExpired Status = "expired"
	// StatusInterrupted is set when backfill or evaluation aborts due to an
	// invariant breach (e.g. a missing block body) rather than expiring
	// normally.
	StatusInterrupted Status = "interrupted"
)

// ExpirationsPolicy bounds how many times a predicate may trigger before it
// is expired, independent of end_block.
type ExpirationsPolicy struct {
	MaxTriggers uint64
}

// HookAction is the delivery sink for a predicate's triggers. Only HTTP
// webhooks are supported, matching spec's ActionDispatcher contract.
type HookAction struct {
	URL                 string
	Method              string
	AuthorizationHeader string
}

// Predicate is a registered chainhook: a matcher evaluated against every
// canonical event in [StartBlock, EndBlock], delivering triggers to Action.
type Predicate struct {
	UUID    uuid.UUID
	Name    string
	Version int
	Chain   Chain

	StartBlock *uint64
	EndBlock   *uint64

	Matcher Matcher
	Action  HookAction

	ExpirationsPolicy ExpirationsPolicy

	// Mutable lifecycle/bookkeeping state, owned exclusively by the
	// Observer/PredicateEngine the same way BlockPool state is.
	Status       Status
	Occurrences  uint64
	RegisteredAt time.Time
}

// Expired reports whether tipIndex has pushed this predicate past its
// end_block, or its trigger count has reached its expirations policy.
func (p *Predicate) Expired(tipIndex uint64) bool {
	if p.EndBlock != nil && tipIndex > *p.EndBlock {
		return true
	}
	if p.ExpirationsPolicy.MaxTriggers > 0 && p.Occurrences >= p.ExpirationsPolicy.MaxTriggers {
		return true
	}
	return false
}

// InRange reports whether blockIndex falls within [StartBlock, EndBlock].
func (p *Predicate) InRange(blockIndex uint64) bool {
	if p.StartBlock != nil && blockIndex < *p.StartBlock {
		return false
	}
	if p.EndBlock != nil && blockIndex > *p.EndBlock {
		return false
	}
	return true
}

// Proof accompanies each matched transaction in a Trigger, sufficient for a
// webhook consumer to independently re-verify inclusion against the node it
// trusts. See SPEC_FULL's SUPPLEMENTED FEATURES section: this core does not
// compute real Merkle inclusion paths, that is consensus/execution work out
// of scope per spec.md §1.
type Proof struct {
	BlockIdentifierIndex uint64
	BlockIdentifierHash  string
	TransactionIndex     int
}

// MatchedTransaction pairs a matched transaction id with the block it was
// found in and the proof of its inclusion.
type MatchedTransaction struct {
	TxID       string
	BlockIndex uint64
	BlockHash  string
	Proof      Proof
}

// Trigger is produced when at least one of Apply/Rollback is non-empty,
// delivered to the ActionDispatcher for the sinks configured on the
// predicate's Action.
type Trigger struct {
	PredicateUUID uuid.UUID
	Apply         []MatchedTransaction
	Rollback      []MatchedTransaction
	// Synthetic marks a trigger produced during backfill replay rather than
	// live evaluation.
	Synthetic bool
}
