package predicate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the predicate store keyed by uuid. It is owned exclusively by
// the Observer's command loop; the mutex here guards the control API's
// read-only inspection routes (GET /predicates), which run on separate
// goroutines from the Observer loop.
type Registry struct {
	mu         sync.RWMutex
	predicates map[uuid.UUID]*Predicate
}

// NewRegistry creates an empty predicate registry.
func NewRegistry() *Registry {
	return &Registry{
		predicates: make(map[uuid.UUID]*Predicate),
	}
}

// Register validates and inserts pred, assigning RegisteredAt and the
// initial StatusNew. Registration is idempotent on UUID: registering the
// same uuid again replaces the existing entry and resets its lifecycle
// state, matching "registering the same predicate spec twice yields the
// same uuid and a single entry."
func (r *Registry) Register(pred *Predicate) error {
	if err := validatePredicate(pred); err != nil {
		return fmt.Errorf("%w: %s", ErrPredicateInvalid, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pred.Status = StatusNew
	pred.Occurrences = 0
	pred.RegisteredAt = time.Now()
	r.predicates[pred.UUID] = pred
	return nil
}

// Unregister removes a predicate. It is idempotent: removing an unknown
// uuid is not an error.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.predicates, id)
}

// Get returns the predicate registered under id, if any.
func (r *Registry) Get(id uuid.UUID) (*Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[id]
	return p, ok
}

// List returns every registered predicate in registration order (oldest
// RegisteredAt first). Trigger delivery order for a single event follows
// this same order, per spec.md §5.
func (r *Registry) List() []*Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Predicate, 0, len(r.predicates))
	for _, p := range r.predicates {
		out = append(out, p)
	}
	sortByRegistrationOrder(out)
	return out
}

// ForChain returns every registered predicate scoped to chain, in
// registration order.
func (r *Registry) ForChain(chain Chain) []*Predicate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Predicate
	for _, p := range r.predicates {
		if p.Chain == chain {
			out = append(out, p)
		}
	}
	sortByRegistrationOrder(out)
	return out
}

// sortByRegistrationOrder orders predicates by RegisteredAt ascending,
// breaking ties on uuid so that ForChain/List produce a deterministic
// order even for predicates registered within the same timer tick.
func sortByRegistrationOrder(preds []*Predicate) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].RegisteredAt.Equal(preds[j].RegisteredAt) {
			return preds[i].UUID.String() < preds[j].UUID.String()
		}
		return preds[i].RegisteredAt.Before(preds[j].RegisteredAt)
	})
}

// SetStatus updates a registered predicate's lifecycle status in place.
func (r *Registry) SetStatus(id uuid.UUID, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.predicates[id]; ok {
		p.Status = status
	}
}

// ExpireIfDue checks whether the predicate at id has passed end_block at
// tipIndex or exhausted its expirations policy, removing it from the
// registry and returning true if so.
func (r *Registry) ExpireIfDue(id uuid.UUID, tipIndex uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.predicates[id]
	if !ok {
		return false
	}
	if !p.Expired(tipIndex) {
		return false
	}
	p.Status = StatusExpired
	delete(r.predicates, id)
	return true
}

func validatePredicate(pred *Predicate) error {
	if pred.UUID == uuid.Nil {
		return fmt.Errorf("uuid is required")
	}
	if pred.Name == "" {
		return fmt.Errorf("name is required")
	}
	if pred.Chain != ChainBitcoin && pred.Chain != ChainStacks {
		return fmt.Errorf("chain must be one of: bitcoin, stacks")
	}
	if pred.StartBlock != nil && pred.EndBlock != nil && *pred.StartBlock > *pred.EndBlock {
		return fmt.Errorf("start_block (%d) must not exceed end_block (%d)", *pred.StartBlock, *pred.EndBlock)
	}
	if err := validateMatcher(pred.Chain, pred.Matcher); err != nil {
		return err
	}
	if pred.Action.URL == "" || pred.Action.Method == "" {
		return fmt.Errorf("action.http requires url and method")
	}
	return nil
}

func validateMatcher(chain Chain, m Matcher) error {
	switch chain {
	case ChainBitcoin:
		if m.Kind != MatcherScript {
			return fmt.Errorf("bitcoin predicates require a script matcher (hex, p2pkh, p2sh, p2wpkh, p2wsh, script)")
		}
		if m.Scope != ScopeInputs && m.Scope != ScopeOutputs {
			return fmt.Errorf("script matcher scope must be one of: inputs, outputs")
		}
	case ChainStacks:
		switch m.Kind {
		case MatcherContractCall:
			if m.ContractIdentifier == "" || m.Method == "" {
				return fmt.Errorf("contract-call predicate requires contract_identifier and method")
			}
		case MatcherPrintEvent:
			if m.ContractIdentifier == "" {
				return fmt.Errorf("print-event predicate requires contract_identifier")
			}
		case MatcherFTEvent, MatcherNFTEvent:
			if m.AssetIdentifier == "" || len(m.Actions) == 0 {
				return fmt.Errorf("token-event predicate requires asset_identifier and at least one action")
			}
		case MatcherSTXEvent:
			if len(m.Actions) == 0 {
				return fmt.Errorf("stx-event predicate requires at least one action")
			}
		default:
			return fmt.Errorf("stacks predicates require one of: contract-call, print-event, ft-event, nft-event, stx-event")
		}
	}
	return nil
}
