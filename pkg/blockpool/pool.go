// Package blockpool implements the fork-aware block pool: it absorbs block
// arrivals for one chain, tracks every plausible fork simultaneously,
// elects a canonical tip, and emits ChainEvents as that tip changes.
package blockpool

import (
	"errors"
	"sort"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/goran-ethernal/chainobserver/pkg/segment"
)

// ForkID is an opaque monotone integer identifying one tracked fork.
type ForkID uint64

// store is the pool's private block-body arena, keyed by identifier. It
// satisfies the blockStore interface the event builder depends on.
type store struct {
	blocks map[chain.BlockIdentifier]chain.Block
}

func newStore() *store {
	return &store{blocks: make(map[chain.BlockIdentifier]chain.Block)}
}

func (s *store) get(id chain.BlockIdentifier) (chain.Block, bool) {
	b, ok := s.blocks[id]
	return b, ok
}

// BlockPool tracks every plausible fork of one chain simultaneously. It is
// not safe for concurrent use; the Observer is the single owner that
// serializes all mutation.
type BlockPool struct {
	chainName         string
	confirmationDepth uint64
	log               *logger.Logger

	blockStore      *store
	forks           map[ForkID]*segment.ChainSegment
	canonicalForkID ForkID
	orphans         map[chain.BlockIdentifier]struct{}
}

// New creates a BlockPool for one chain with the given confirmation depth
// (6 for L1 per spec; chain-specific for L2). The pool always starts with
// an empty fork at id 0, which is the initial canonical fork.
func New(chainName string, confirmationDepth uint64, log *logger.Logger) *BlockPool {
	p := &BlockPool{
		chainName:         chainName,
		confirmationDepth: confirmationDepth,
		log:               log.WithComponent("blockpool-" + chainName),
		blockStore:        newStore(),
		forks:             make(map[ForkID]*segment.ChainSegment),
		orphans:           make(map[chain.BlockIdentifier]struct{}),
	}
	p.forks[0] = segment.New()
	forksActiveSet(chainName, 1)
	return p
}

// CanonicalForkID returns the currently elected fork's id.
func (p *BlockPool) CanonicalForkID() ForkID {
	return p.canonicalForkID
}

// CanonicalSegment returns a clone of the currently elected fork's segment.
func (p *BlockPool) CanonicalSegment() *segment.ChainSegment {
	return p.forks[p.canonicalForkID].Clone()
}

// OrphanCount returns the number of blocks currently held as orphans.
func (p *BlockPool) OrphanCount() int {
	return len(p.orphans)
}

// ForkCount returns the number of forks currently tracked.
func (p *BlockPool) ForkCount() int {
	return len(p.forks)
}

// CanonicalBlocksFrom returns the bodies of every canonical block at or
// past startIndex, ascending. Used by predicate backfill (spec §4.5) to
// replay the already-canonical segment as synthetic Append events for a
// predicate whose start_block precedes the current tip. Bodies pruned past
// the confirmation horizon are silently skipped: a predicate registered
// with a start_block older than the pool's retained window can only
// observe the blocks the pool still holds.
func (p *BlockPool) CanonicalBlocksFrom(startIndex uint64) []chain.Block {
	ascending := p.forks[p.canonicalForkID].BlocksAscending()
	blocks := make([]chain.Block, 0, len(ascending))
	for _, id := range ascending {
		if id.Index < startIndex {
			continue
		}
		if body, ok := p.blockStore.get(id); ok {
			blocks = append(blocks, body)
		}
	}
	return blocks
}

// ProcessBlock is the pool's sole mutating entry point. It implements the
// nine-step algorithm of spec §4.2: dedup, store, snapshot, append-or-orphan,
// orphan promotion, canonical election, event construction, and
// confirmation/pruning.
//
// A nil, nil return means the block was absorbed without producing a
// ChainEvent (duplicate, orphan, or a canonical-fork change that could not
// be resolved to a common ancestor). A non-nil error means a program
// invariant was violated while building the event; pool state for this
// call is otherwise already committed (the block is stored and forks are
// updated), matching §7's "contained" error policy — only event emission
// for this step is aborted.
func (p *BlockPool) ProcessBlock(block chain.Block) (*ChainEvent, error) {
	id := block.Identifier()

	// Step 1: deduplicate.
	if _, ok := p.blockStore.get(id); ok {
		blockIngestedInc(p.chainName, "duplicate")
		p.log.Debugf("duplicate block ignored: %s", id)
		return nil, nil
	}

	// Step 2: store.
	p.blockStore.blocks[id] = block

	// Step 3: snapshot previous canonical.
	prevCanonical := p.forks[p.canonicalForkID].Clone()
	prevCanonicalForkID := p.canonicalForkID

	// Step 4: attempt append.
	extendedForkID, ok := p.appendToForks(block)
	if !ok {
		p.orphans[id] = struct{}{}
		orphansHeldSet(p.chainName, len(p.orphans))
		p.log.Infof("orphaned block: %s (parent %s unknown)", id, block.ParentIdentifier())
		blockIngestedInc(p.chainName, "orphaned")
		return nil, nil
	}
	blockIngestedInc(p.chainName, "appended")

	// Step 5: promote orphans against the fork just extended.
	p.promoteOrphans(extendedForkID)
	forksActiveSet(p.chainName, len(p.forks))
	orphansHeldSet(p.chainName, len(p.orphans))

	// Step 6: elect canonical.
	p.canonicalForkID = p.electCanonical()

	// Step 7: build event, or bail if canonical didn't change.
	if p.canonicalForkID == prevCanonicalForkID && p.forks[p.canonicalForkID].Equal(prevCanonical) {
		return nil, nil
	}

	event, err := buildChainEvent(p.forks[p.canonicalForkID], prevCanonical, p.blockStore)
	if err != nil {
		if errors.Is(err, segment.ErrParentBlockUnknown) {
			p.log.Warnf("reverting canonical election: no common ancestor for fork %d", p.canonicalForkID)
			p.canonicalForkID = prevCanonicalForkID
			return nil, nil
		}
		p.log.Errorf("aborting event generation, invariant violation: %v", err)
		return nil, err
	}

	if event.IsReorg() {
		reorgDetectedObserve(p.chainName, len(event.BlocksToRollback))
	}

	// Step 8: confirm and prune.
	p.confirmAndPrune(&event)
	canonicalHeightSet(p.chainName, p.forks[p.canonicalForkID].Tip().Index)

	return &event, nil
}

// appendToForks iterates forks in ascending ForkID order, appending block to
// at most one of them. A branch created mid-iteration is assigned the next
// ForkID (the current fork count) and inserted.
func (p *BlockPool) appendToForks(block chain.Block) (ForkID, bool) {
	for _, id := range p.sortedForkIDs() {
		f := p.forks[id]
		appended, newFork := f.TryAppendBlock(block)
		if appended {
			return id, true
		}
		if newFork != nil {
			newID := ForkID(len(p.forks))
			p.forks[newID] = newFork
			blockIngestedInc(p.chainName, "branched")
			return newID, true
		}
	}
	return 0, false
}

// promoteOrphans retries every held orphan against the single fork extended
// by this call's triggering block, looping until a full pass promotes
// nothing. A branch spawned by a promoted orphan is recorded but is not
// itself retried against in the same call; it becomes eligible on a later
// arrival like any other fork.
func (p *BlockPool) promoteOrphans(extendedForkID ForkID) {
	fork := p.forks[extendedForkID]

	for {
		promotedAny := false
		for orphanID := range p.orphans {
			body, ok := p.blockStore.get(orphanID)
			if !ok {
				continue
			}
			appended, newFork := fork.TryAppendBlock(body)
			if appended {
				delete(p.orphans, orphanID)
				promotedAny = true
				continue
			}
			if newFork != nil {
				newID := ForkID(len(p.forks))
				p.forks[newID] = newFork
				blockIngestedInc(p.chainName, "branched")
				delete(p.orphans, orphanID)
				promotedAny = true
			}
		}
		if !promotedAny {
			return
		}
	}
}

// electCanonical returns the fork with the greatest length, breaking ties
// by the greatest ForkID (most recently created), matching the reference
// tie-break documented in spec §4.2 and §9.
func (p *BlockPool) electCanonical() ForkID {
	var best ForkID
	bestLen := -1
	for _, id := range p.sortedForkIDs() {
		l := p.forks[id].Len()
		if l > bestLen || (l == bestLen && id > best) {
			best = id
			bestLen = l
		}
	}
	return best
}

// confirmAndPrune implements step 8: it moves blocks past the confirmation
// horizon into event.ConfirmedBlocks, prunes every fork, drops empty forks
// and stale orphans, and erases the pruned bodies from the store.
func (p *BlockPool) confirmAndPrune(event *ChainEvent) {
	canonical := p.forks[p.canonicalForkID]
	walkLength := uint64(canonical.Len())
	if walkLength < p.confirmationDepth+1 {
		return
	}

	cutOffIDs := canonical.Blocks() // tip-first
	cutOff := cutOffIDs[p.confirmationDepth-1]

	confirmedAscending := make([]chain.Block, 0)
	for i := len(cutOffIDs) - 1; i >= 0; i-- {
		id := cutOffIDs[i]
		if id.Index >= cutOff.Index {
			continue
		}
		if body, ok := p.blockStore.get(id); ok {
			confirmedAscending = append(confirmedAscending, body)
		}
	}
	event.ConfirmedBlocks = confirmedAscending
	blocksConfirmedInc(p.chainName, len(confirmedAscending))

	var prunedIDs []chain.BlockIdentifier
	for id, f := range p.forks {
		prunedIDs = append(prunedIDs, f.PruneConfirmedBlocks(cutOff)...)
		if f.IsEmpty() {
			delete(p.forks, id)
		}
	}

	for id := range p.orphans {
		if id.Index < cutOff.Index {
			delete(p.orphans, id)
		}
	}

	for _, id := range prunedIDs {
		delete(p.blockStore.blocks, id)
	}

	forksActiveSet(p.chainName, len(p.forks))
	orphansHeldSet(p.chainName, len(p.orphans))
}

func (p *BlockPool) sortedForkIDs() []ForkID {
	ids := make([]ForkID, 0, len(p.forks))
	for id := range p.forks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
