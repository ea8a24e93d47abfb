package predicate

import (
	"encoding/json"
	"testing"

	"github.com/goran-ethernal/chainobserver/internal/logger"
	"github.com/goran-ethernal/chainobserver/pkg/blockpool"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func stacksBlock(index uint64, hash string, txs ...chain.StacksTransaction) chain.StacksBlock {
	return chain.StacksBlock{
		BlockIdentifier: chain.BlockIdentifier{Index: index, Hash: hash},
		Transactions:    txs,
	}
}

func contractCallTx(id string) chain.StacksTransaction {
	return chain.StacksTransaction{
		TxID:               id,
		Kind:               chain.StacksTxContractCall,
		ContractIdentifier: "SP000.pool",
		Method:             "swap",
	}
}

func TestEngine_Evaluate_AppendProducesTrigger(t *testing.T) {
	registry := NewRegistry()
	pred := validStacksPredicate()
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{stacksBlock(1, "B", contractCallTx("tx1"))},
	}

	triggers := engine.Evaluate(event)
	require.Len(t, triggers, 1)
	require.Equal(t, pred.UUID, triggers[0].PredicateUUID)
	require.Len(t, triggers[0].Apply, 1)
	require.Equal(t, "tx1", triggers[0].Apply[0].TxID)
	require.Empty(t, triggers[0].Rollback)
	require.EqualValues(t, 1, pred.Occurrences)
}

func TestEngine_Evaluate_NoMatchProducesNoTrigger(t *testing.T) {
	registry := NewRegistry()
	pred := validStacksPredicate()
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	nonMatchingTx := chain.StacksTransaction{TxID: "tx1", Kind: chain.StacksTxOther}
	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{stacksBlock(1, "B", nonMatchingTx)},
	}

	require.Empty(t, engine.Evaluate(event))
}

func TestEngine_Evaluate_ReorgProducesApplyAndRollback(t *testing.T) {
	registry := NewRegistry()
	pred := validStacksPredicate()
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:             blockpool.EventReorg,
		BlocksToRollback: []chain.Block{stacksBlock(1, "B", contractCallTx("rolled-back-tx"))},
		BlocksToApply:    []chain.Block{stacksBlock(1, "B'", contractCallTx("applied-tx"))},
	}

	triggers := engine.Evaluate(event)
	require.Len(t, triggers, 1)
	require.Len(t, triggers[0].Apply, 1)
	require.Equal(t, "applied-tx", triggers[0].Apply[0].TxID)
	require.Len(t, triggers[0].Rollback, 1)
	require.Equal(t, "rolled-back-tx", triggers[0].Rollback[0].TxID)
}

func TestEngine_Evaluate_OutOfRangePredicateSkipped(t *testing.T) {
	registry := NewRegistry()
	pred := validStacksPredicate()
	start := uint64(100)
	pred.StartBlock = &start
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{stacksBlock(1, "B", contractCallTx("tx1"))},
	}

	require.Empty(t, engine.Evaluate(event))
}

func TestEngine_Evaluate_ExpiresAfterEndBlock(t *testing.T) {
	registry := NewRegistry()
	pred := validStacksPredicate()
	end := uint64(1)
	pred.EndBlock = &end
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{stacksBlock(2, "C", contractCallTx("tx1"))},
	}

	require.Empty(t, engine.Evaluate(event))

	_, ok := registry.Get(pred.UUID)
	require.False(t, ok, "predicate should have expired and been removed once the tip passed end_block")
}

func TestEngine_Evaluate_DifferentChainIgnored(t *testing.T) {
	registry := NewRegistry()
	pred := &Predicate{
		UUID:  uuid.New(),
		Name:  "btc-hook",
		Chain: ChainBitcoin,
		Matcher: Matcher{
			Kind:  MatcherScript,
			Scope: ScopeOutputs,
			Rule:  ScriptRule{Kind: ScriptRuleAddress, Family: AddressP2PKH},
		},
		Action: HookAction{URL: "https://example.com/hook", Method: "POST"},
	}
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainStacks, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{stacksBlock(1, "B", contractCallTx("tx1"))},
	}

	require.Empty(t, engine.Evaluate(event))
}

// TestEngine_Evaluate_MatchesBlockDecodedFromJSON round-trips a bitcoin
// block through the same JSON decoding shape the ingestion HTTP handler
// uses (unmarshal into a chain.BitcoinBlock value, not a *chain.BitcoinBlock)
// before handing it to the Engine, guarding against a block whose dynamic
// type is a pointer silently failing matchBlock's value-type assertion.
func TestEngine_Evaluate_MatchesBlockDecodedFromJSON(t *testing.T) {
	const body = `{
		"block_identifier": {"index": 1, "hash": "B"},
		"transactions": [{"txid": "tx1", "outputs": [{"script_hex": "6a0b68656c6c6f", "value_sats": 0}]}]
	}`

	var block chain.BitcoinBlock
	require.NoError(t, json.Unmarshal([]byte(body), &block))

	registry := NewRegistry()
	pred := &Predicate{
		UUID:  uuid.New(),
		Name:  "btc-hook",
		Chain: ChainBitcoin,
		Matcher: Matcher{
			Kind:  MatcherScript,
			Scope: ScopeOutputs,
			Rule:  ScriptRule{Kind: ScriptRuleHex, HexKind: HexStartsWith, HexStr: "6a"},
		},
		Action: HookAction{URL: "https://example.com/hook", Method: "POST"},
	}
	require.NoError(t, registry.Register(pred))

	engine := NewEngine(registry, ChainBitcoin, logger.NewNopLogger())

	event := blockpool.ChainEvent{
		Kind:      blockpool.EventAppend,
		NewBlocks: []chain.Block{block},
	}

	triggers := engine.Evaluate(event)
	require.Len(t, triggers, 1)
	require.Len(t, triggers[0].Apply, 1)
	require.Equal(t, "tx1", triggers[0].Apply[0].TxID)
}
