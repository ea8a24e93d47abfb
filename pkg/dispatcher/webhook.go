package dispatcher

import (
	"encoding/json"
	"fmt"

	"github.com/goran-ethernal/chainobserver/pkg/predicate"
	"github.com/google/uuid"
)

// WebhookPayload is the JSON body delivered to an HTTP sink, per spec.md §6:
// { apply: [...], rollback: [...], chainhook: { uuid, predicate }, proofs: {...} }.
type WebhookPayload struct {
	Apply     []TransactionEnvelope    `json:"apply"`
	Rollback  []TransactionEnvelope    `json:"rollback"`
	Chainhook ChainhookEnvelope        `json:"chainhook"`
	Proofs    map[string]ProofEnvelope `json:"proofs"`
}

// ChainhookEnvelope identifies the predicate a trigger was produced for.
type ChainhookEnvelope struct {
	UUID      uuid.UUID `json:"uuid"`
	Predicate string    `json:"predicate"`
}

// TransactionEnvelope is a matched transaction's position in the canonical
// stream, without its inclusion proof (carried separately under Proofs,
// keyed by transaction hash).
type TransactionEnvelope struct {
	TransactionIdentifier TransactionIdentifier `json:"transaction_identifier"`
	BlockIdentifier       BlockIdentifier       `json:"block_identifier"`
}

type TransactionIdentifier struct {
	Hash string `json:"hash"`
}

type BlockIdentifier struct {
	Index uint64 `json:"index"`
	Hash  string `json:"hash"`
}

// ProofEnvelope accompanies a matched transaction for independent
// re-verification by the webhook consumer.
type ProofEnvelope struct {
	TransactionIndex int `json:"transaction_index"`
}

// BuildWebhookPayload converts a Trigger and the predicate it was produced
// for into the wire shape delivered to the predicate's HTTP sink.
func BuildWebhookPayload(pred *predicate.Predicate, trigger predicate.Trigger) *WebhookPayload {
	payload := &WebhookPayload{
		Apply:     make([]TransactionEnvelope, 0, len(trigger.Apply)),
		Rollback:  make([]TransactionEnvelope, 0, len(trigger.Rollback)),
		Chainhook: ChainhookEnvelope{UUID: trigger.PredicateUUID, Predicate: pred.Name},
		Proofs:    make(map[string]ProofEnvelope, len(trigger.Apply)+len(trigger.Rollback)),
	}

	for _, tx := range trigger.Apply {
		payload.Apply = append(payload.Apply, envelopeFor(tx))
		payload.Proofs[tx.TxID] = ProofEnvelope{TransactionIndex: tx.Proof.TransactionIndex}
	}
	for _, tx := range trigger.Rollback {
		payload.Rollback = append(payload.Rollback, envelopeFor(tx))
		payload.Proofs[tx.TxID] = ProofEnvelope{TransactionIndex: tx.Proof.TransactionIndex}
	}

	return payload
}

func envelopeFor(tx predicate.MatchedTransaction) TransactionEnvelope {
	return TransactionEnvelope{
		TransactionIdentifier: TransactionIdentifier{Hash: tx.TxID},
		BlockIdentifier:       BlockIdentifier{Index: tx.BlockIndex, Hash: tx.BlockHash},
	}
}

// ToTrigger recovers a Trigger from a parsed WebhookPayload, restoring the
// block identifier and proof each matched transaction was delivered with.
// Used by round-trip tests and by any consumer that wants typed access to a
// payload it received.
func (w *WebhookPayload) ToTrigger() predicate.Trigger {
	return predicate.Trigger{
		PredicateUUID: w.Chainhook.UUID,
		Apply:         toMatchedTransactions(w.Apply, w.Proofs),
		Rollback:      toMatchedTransactions(w.Rollback, w.Proofs),
	}
}

func toMatchedTransactions(envs []TransactionEnvelope, proofs map[string]ProofEnvelope) []predicate.MatchedTransaction {
	out := make([]predicate.MatchedTransaction, 0, len(envs))
	for _, env := range envs {
		proof := proofs[env.TransactionIdentifier.Hash]
		out = append(out, predicate.MatchedTransaction{
			TxID:       env.TransactionIdentifier.Hash,
			BlockIndex: env.BlockIdentifier.Index,
			BlockHash:  env.BlockIdentifier.Hash,
			Proof: predicate.Proof{
				BlockIdentifierIndex: env.BlockIdentifier.Index,
				BlockIdentifierHash:  env.BlockIdentifier.Hash,
				TransactionIndex:     proof.TransactionIndex,
			},
		})
	}
	return out
}

// ParseWebhookPayload decodes a webhook body previously produced by
// BuildWebhookPayload.
func ParseWebhookPayload(data []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("dispatcher: parse webhook payload: %w", err)
	}
	return &payload, nil
}
