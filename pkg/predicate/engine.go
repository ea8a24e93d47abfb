package predicate

import (
	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/blockpool"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
)

// Engine evaluates ChainEvents against a Registry and produces Triggers for
// the ActionDispatcher. Each Engine is bound to one chain at construction
// and evaluates only the predicates whose Chain field names that chain.
type Engine struct {
	registry *Registry
	chain    Chain
	log      *logger.Logger
}

// NewEngine creates an Engine evaluating predicates registered for chainName
// (ChainBitcoin or ChainStacks) against registry.
func NewEngine(registry *Registry, chainName Chain, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Engine{registry: registry, chain: chainName, log: log}
}

// Evaluate runs every registered predicate for this engine's chain against
// event, in registration order (Registry.ForChain already returns
// predicates ordered by RegisteredAt), so the returned Triggers are ready
// for direct, in-order delivery to the dispatcher.
func (e *Engine) Evaluate(event blockpool.ChainEvent) []Trigger {
	var triggers []Trigger

	affectedMin, affectedMax, ok := affectedRange(event)
	if !ok {
		return nil
	}

	for _, pred := range e.registry.ForChain(e.chain) {
		if !predicateIntersects(pred, affectedMin, affectedMax) {
			e.registry.ExpireIfDue(pred.UUID, canonicalTipIndex(event, affectedMax))
			continue
		}

		trigger := e.evaluateOne(pred, event)
		if trigger != nil {
			triggers = append(triggers, *trigger)
			pred.Occurrences++
		}

		e.registry.ExpireIfDue(pred.UUID, canonicalTipIndex(event, affectedMax))
	}

	return triggers
}

func (e *Engine) evaluateOne(pred *Predicate, event blockpool.ChainEvent) *Trigger {
	var apply, rollback []MatchedTransaction

	for _, b := range event.AppliedBlocks() {
		if !pred.InRange(b.Identifier().Index) {
			continue
		}
		apply = append(apply, e.matchBlock(pred, b)...)
	}

	if event.IsReorg() {
		for _, b := range event.BlocksToRollback {
			if !pred.InRange(b.Identifier().Index) {
				continue
			}
			rollback = append(rollback, e.matchBlock(pred, b)...)
		}
	}

	if len(apply) == 0 && len(rollback) == 0 {
		return nil
	}

	return &Trigger{
		PredicateUUID: pred.UUID,
		Apply:         apply,
		Rollback:      rollback,
		Synthetic:     event.Synthetic,
	}
}

func (e *Engine) matchBlock(pred *Predicate, b chain.Block) []MatchedTransaction {
	switch pred.Chain {
	case ChainStacks:
		block, ok := b.(chain.StacksBlock)
		if !ok {
			e.log.Warnw("predicate registered for stacks received a non-stacks block", "uuid", pred.UUID)
			return nil
		}
		return matchStacksBlock(pred, block)
	case ChainBitcoin:
		block, ok := b.(chain.BitcoinBlock)
		if !ok {
			e.log.Warnw("predicate registered for bitcoin received a non-bitcoin block", "uuid", pred.UUID)
			return nil
		}
		return matchBitcoinBlock(pred, block)
	default:
		return nil
	}
}

func matchStacksBlock(pred *Predicate, block chain.StacksBlock) []MatchedTransaction {
	var hits []MatchedTransaction
	for i, tx := range block.Transactions {
		if !pred.Matcher.MatchStacks(tx) {
			continue
		}
		hits = append(hits, newMatchedTransaction(tx.TxID, block.BlockIdentifier, i))
	}
	return hits
}

func matchBitcoinBlock(pred *Predicate, block chain.BitcoinBlock) []MatchedTransaction {
	var hits []MatchedTransaction
	for i, tx := range block.Transactions {
		if !pred.Matcher.MatchBitcoin(tx) {
			continue
		}
		hits = append(hits, newMatchedTransaction(tx.TxID, block.BlockIdentifier, i))
	}
	return hits
}

func newMatchedTransaction(txID string, blockID chain.BlockIdentifier, txIndex int) MatchedTransaction {
	return MatchedTransaction{
		TxID:       txID,
		BlockIndex: blockID.Index,
		BlockHash:  blockID.Hash,
		Proof: Proof{
			BlockIdentifierIndex: blockID.Index,
			BlockIdentifierHash:  blockID.Hash,
			TransactionIndex:     txIndex,
		},
	}
}

// affectedRange returns the lowest and highest block index touched by
// event, across NewBlocks/BlocksToApply/BlocksToRollback.
func affectedRange(event blockpool.ChainEvent) (min, max uint64, ok bool) {
	var indices []uint64
	for _, b := range event.NewBlocks {
		indices = append(indices, b.Identifier().Index)
	}
	for _, b := range event.BlocksToApply {
		indices = append(indices, b.Identifier().Index)
	}
	for _, b := range event.BlocksToRollback {
		indices = append(indices, b.Identifier().Index)
	}
	if len(indices) == 0 {
		return 0, 0, false
	}

	min, max = indices[0], indices[0]
	for _, idx := range indices[1:] {
		if idx < min {
			min = idx
		}
		if idx > max {
			max = idx
		}
	}
	return min, max, true
}

// canonicalTipIndex returns the highest index among the blocks just applied
// to the canonical chain, falling back to affectedMax when the event
// carries no applied blocks (a rollback-only event should not occur per the
// core spec, but this keeps expiry checks total).
func canonicalTipIndex(event blockpool.ChainEvent, affectedMax uint64) uint64 {
	applied := event.AppliedBlocks()
	if len(applied) == 0 {
		return affectedMax
	}
	return applied[len(applied)-1].Identifier().Index
}

func predicateIntersects(pred *Predicate, min, max uint64) bool {
	if pred.EndBlock != nil && *pred.EndBlock < min {
		return false
	}
	if pred.StartBlock != nil && *pred.StartBlock > max {
		return false
	}
	return true
}
