// Package segment implements ChainSegment, the ordered tip-first sequence
// of block identifiers the block pool uses to represent one candidate fork.
package segment

import (
	"errors"

	"github.com/goran-ethernal/chainobserver/pkg/chain"
)

// ErrParentBlockUnknown is returned by TryIdentifyDivergence when the two
// segments share no common ancestor within either segment's range.
var ErrParentBlockUnknown = errors.New("segment: parent block unknown")

// ChainSegment is an ordered, tip-first sequence of BlockIdentifiers
// representing a contiguous ancestor chain. Invariants:
//   - consecutive entries satisfy blocks[i].Index == blocks[i+1].Index + 1
//   - no duplicate identifiers
//   - Len() == tip.Index - base.Index + 1 (when non-empty)
//
// A ChainSegment stores identifiers only; block bodies live in the pool's
// block store.
type ChainSegment struct {
	// blocks is stored tip-first: blocks[0] is the tip, blocks[len-1] the base.
	blocks []chain.BlockIdentifier
}

// New returns an empty ChainSegment.
func New() *ChainSegment {
	return &ChainSegment{}
}

// NewWithBlocks returns a ChainSegment seeded with the given tip-first
// identifiers. Callers are responsible for the ordering invariant; this is
// used internally when constructing a branch from an existing segment.
func NewWithBlocks(blocks []chain.BlockIdentifier) *ChainSegment {
	cp := make([]chain.BlockIdentifier, len(blocks))
	copy(cp, blocks)
	return &ChainSegment{blocks: cp}
}

// IsEmpty reports whether the segment holds no blocks.
func (s *ChainSegment) IsEmpty() bool {
	return len(s.blocks) == 0
}

// Len returns the number of blocks in the segment.
func (s *ChainSegment) Len() int {
	return len(s.blocks)
}

// Tip returns the segment's highest-index block identifier. Callers must
// not call Tip on an empty segment.
func (s *ChainSegment) Tip() chain.BlockIdentifier {
	return s.blocks[0]
}

// Base returns the segment's lowest-index block identifier. Callers must
// not call Base on an empty segment.
func (s *ChainSegment) Base() chain.BlockIdentifier {
	return s.blocks[len(s.blocks)-1]
}

// Blocks returns the tip-first identifiers. The returned slice is owned by
// the caller; mutating it does not affect the segment.
func (s *ChainSegment) Blocks() []chain.BlockIdentifier {
	cp := make([]chain.BlockIdentifier, len(s.blocks))
	copy(cp, s.blocks)
	return cp
}

// BlocksAscending returns the segment's identifiers ordered from base to tip.
func (s *ChainSegment) BlocksAscending() []chain.BlockIdentifier {
	asc := make([]chain.BlockIdentifier, len(s.blocks))
	for i, b := range s.blocks {
		asc[len(s.blocks)-1-i] = b
	}
	return asc
}

// Contains reports whether id appears anywhere in the segment.
func (s *ChainSegment) Contains(id chain.BlockIdentifier) bool {
	_, ok := s.indexOf(id)
	return ok
}

// indexOf returns the position of id within s.blocks (tip-first order).
func (s *ChainSegment) indexOf(id chain.BlockIdentifier) (int, bool) {
	for i, b := range s.blocks {
		if b.Equal(id) {
			return i, true
		}
	}
	return 0, false
}

// atHeight returns the identifier at the given block height, if present.
func (s *ChainSegment) atHeight(height uint64) (chain.BlockIdentifier, bool) {
	if s.IsEmpty() {
		return chain.BlockIdentifier{}, false
	}
	tip := s.Tip().Index
	base := s.Base().Index
	if height > tip || height < base {
		return chain.BlockIdentifier{}, false
	}
	return s.blocks[tip-height], true
}

// TryAppendBlock attempts to extend the segment with a new block.
//
//   - If the segment is empty, the block is always accepted.
//   - If block.ParentIdentifier() equals the current tip, the block is
//     appended in place.
//   - If the parent lies inside the segment but is not the tip, this is a
//     branch point: a brand new ChainSegment sharing ancestry up to and
//     including the parent, then ending with block, is returned. The
//     receiver is left unmodified.
//   - Otherwise the block does not relate to this segment at all.
func (s *ChainSegment) TryAppendBlock(block chain.Block) (appended bool, newFork *ChainSegment) {
	id := block.Identifier()
	parent := block.ParentIdentifier()

	if s.IsEmpty() {
		s.blocks = []chain.BlockIdentifier{id}
		return true, nil
	}

	if parent.Equal(s.Tip()) {
		s.blocks = append([]chain.BlockIdentifier{id}, s.blocks...)
		return true, nil
	}

	if idx, ok := s.indexOf(parent); ok {
		// Branch: ancestry from parent down to base, then the new block on top.
		ancestry := s.blocks[idx:]
		branch := make([]chain.BlockIdentifier, 0, len(ancestry)+1)
		branch = append(branch, id)
		branch = append(branch, ancestry...)
		return false, &ChainSegment{blocks: branch}
	}

	return false, nil
}

// Divergence describes how two segments relate: the blocks to discard from
// the other (abandoned) segment, tip-first, and the blocks to apply from
// this (new canonical) segment, base-first.
type Divergence struct {
	BlocksToRollback []chain.BlockIdentifier // other's tip down to just above common ancestor
	BlocksToApply    []chain.BlockIdentifier // s's blocks, ascending, above common ancestor
}

// TryIdentifyDivergence walks both segments tip-down in lock-step by index
// until it finds a common ancestor. It returns ErrParentBlockUnknown if no
// common ancestor exists within either segment's range.
func (s *ChainSegment) TryIdentifyDivergence(other *ChainSegment) (Divergence, error) {
	if s.IsEmpty() && other.IsEmpty() {
		return Divergence{}, nil
	}
	if s.IsEmpty() || other.IsEmpty() {
		return Divergence{}, ErrParentBlockUnknown
	}

	// Align both segments to the lower of the two tips.
	height := s.Tip().Index
	if other.Tip().Index < height {
		height = other.Tip().Index
	}
	lowBound := s.Base().Index
	if other.Base().Index > lowBound {
		lowBound = other.Base().Index
	}

	for h := int64(height); h >= int64(lowBound); h-- {
		sID, sOK := s.atHeight(uint64(h))
		oID, oOK := other.atHeight(uint64(h))
		if !sOK || !oOK {
			continue
		}
		if sID.Equal(oID) {
			// Found the common ancestor at height h.
			rollback := make([]chain.BlockIdentifier, 0)
			for height := other.Tip().Index; height > uint64(h); height-- {
				id, _ := other.atHeight(height)
				rollback = append(rollback, id)
			}
			apply := make([]chain.BlockIdentifier, 0)
			for height := uint64(h) + 1; height <= s.Tip().Index; height++ {
				id, _ := s.atHeight(height)
				apply = append(apply, id)
			}
			return Divergence{BlocksToRollback: rollback, BlocksToApply: apply}, nil
		}
	}

	return Divergence{}, ErrParentBlockUnknown
}

// PruneConfirmedBlocks removes every identifier whose index is less than or
// equal to cutOff's index, returning the removed identifiers so the caller
// can erase the corresponding bodies from the block store.
func (s *ChainSegment) PruneConfirmedBlocks(cutOff chain.BlockIdentifier) []chain.BlockIdentifier {
	var removed []chain.BlockIdentifier
	kept := s.blocks[:0:0]
	for _, b := range s.blocks {
		if b.Index <= cutOff.Index {
			removed = append(removed, b)
			continue
		}
		kept = append(kept, b)
	}
	s.blocks = kept
	return removed
}

// Equal reports structural equality: same length and same identifiers at
// the same positions.
func (s *ChainSegment) Equal(other *ChainSegment) bool {
	if other == nil {
		return s == nil || s.IsEmpty()
	}
	if len(s.blocks) != len(other.blocks) {
		return false
	}
	for i := range s.blocks {
		if !s.blocks[i].Equal(other.blocks[i]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the segment.
func (s *ChainSegment) Clone() *ChainSegment {
	return NewWithBlocks(s.blocks)
}
