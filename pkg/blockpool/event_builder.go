package blockpool

import (
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/goran-ethernal/chainobserver/pkg/segment"
)

// blockStore resolves a body for an identifier. BlockPool.blockStore
// satisfies this directly.
type blockStore interface {
	get(id chain.BlockIdentifier) (chain.Block, bool)
}

// buildChainEvent diffs prevCanonical against newCanonical and produces the
// ChainEvent a consumer should react to. ConfirmedBlocks is always left
// empty here; the pool's pruning pass (§4.2 step 8) fills it in once the
// final canonical choice for this arrival is settled.
//
// Returns segment.ErrParentBlockUnknown when no common ancestor can be
// established between the two segments; the caller must revert its
// canonical-fork election and suppress the event in that case.
func buildChainEvent(newCanonical, prevCanonical *segment.ChainSegment, store blockStore) (ChainEvent, error) {
	if prevCanonical.IsEmpty() {
		blocks, err := resolveBlocks(newCanonical.BlocksAscending(), store)
		if err != nil {
			return ChainEvent{}, err
		}
		return ChainEvent{Kind: EventAppend, NewBlocks: blocks}, nil
	}

	div, err := newCanonical.TryIdentifyDivergence(prevCanonical)
	if err != nil {
		// segment.ErrParentBlockUnknown propagates as-is; the pool reverts
		// its canonical election and suppresses the event for this case.
		return ChainEvent{}, err
	}

	if len(div.BlocksToRollback) == 0 {
		blocks, err := resolveBlocks(div.BlocksToApply, store)
		if err != nil {
			return ChainEvent{}, err
		}
		return ChainEvent{Kind: EventAppend, NewBlocks: blocks}, nil
	}

	rollback, err := resolveBlocks(div.BlocksToRollback, store)
	if err != nil {
		return ChainEvent{}, err
	}
	apply, err := resolveBlocks(div.BlocksToApply, store)
	if err != nil {
		return ChainEvent{}, err
	}
	return ChainEvent{Kind: EventReorg, BlocksToRollback: rollback, BlocksToApply: apply}, nil
}

func resolveBlocks(ids []chain.BlockIdentifier, store blockStore) ([]chain.Block, error) {
	blocks := make([]chain.Block, 0, len(ids))
	for _, id := range ids {
		b, ok := store.get(id)
		if !ok {
			return nil, newMissingBlockBodyError(id)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
