package blockpool

import "github.com/goran-ethernal/chainobserver/pkg/chain"

// EventKind discriminates the ChainEvent union.
type EventKind int

const (
	// EventAppend signals the canonical fork grew without any rollback.
	EventAppend EventKind = iota
	// EventReorg signals the canonical fork changed to a different branch,
	// requiring rollback of the abandoned blocks and apply of the new ones.
	EventReorg
)

func (k EventKind) String() string {
	switch k {
	case EventAppend:
		return "append"
	case EventReorg:
		return "reorg"
	default:
		return "unknown"
	}
}

// ChainEvent is the discriminated union emitted by BlockPool.ProcessBlock
// whenever the canonical fork changes. For EventAppend, BlocksToRollback is
// always empty. NewBlocks and BlocksToApply are ordered ascending by index;
// BlocksToRollback is ordered descending (tip of the abandoned fork first).
// ConfirmedBlocks is ordered ascending and is populated by the pool's
// pruning pass, not by the event builder.
type ChainEvent struct {
	Kind             EventKind
	NewBlocks        []chain.Block // only set for EventAppend
	BlocksToRollback []chain.Block // only set for EventReorg, tip-first
	BlocksToApply    []chain.Block // only set for EventReorg, ascending
	ConfirmedBlocks  []chain.Block // ascending; crossed confirmation horizon on this event

	// Synthetic marks an event manufactured during predicate backfill replay
	// rather than derived from a live canonical-fork change. See
	// Observer.backfill.
	Synthetic bool
}

// AppliedBlocks returns the blocks a consumer should apply, regardless of
// whether this event is an Append or a Reorg.
func (e ChainEvent) AppliedBlocks() []chain.Block {
	if e.Kind == EventReorg {
		return e.BlocksToApply
	}
	return e.NewBlocks
}

// IsReorg reports whether this event carries a non-empty rollback set.
func (e ChainEvent) IsReorg() bool {
	return e.Kind == EventReorg && len(e.BlocksToRollback) > 0
}
