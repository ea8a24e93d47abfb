package predicate

import (
	"strings"

	"github.com/goran-ethernal/chainobserver/pkg/chain"
)

// MatcherKind discriminates Matcher's tagged-variant fields. Chain-specific
// matchers are distinguished by kind rather than dynamic dispatch, per the
// polymorphism note on chain-specific matchers living under a tagged
// variant.
type MatcherKind int

const (
	MatcherContractCall MatcherKind = iota
	MatcherPrintEvent
	MatcherFTEvent
	MatcherNFTEvent
	MatcherSTXEvent
	MatcherScript
)

// Scope selects which side of a Bitcoin transaction a script matcher
// inspects.
type Scope string

const (
	ScopeInputs  Scope = "inputs"
	ScopeOutputs Scope = "outputs"
)

// ScriptRuleKind discriminates the script matcher's rule shape.
type ScriptRuleKind int

const (
	// ScriptRuleHex matches against the transaction's raw script hex using
	// StartsWith/EndsWith/Equals, for the "hex" predicate family.
	ScriptRuleHex ScriptRuleKind = iota
	// ScriptRuleAddress classifies the script and matches against one of
	// the standard address template families (p2pkh/p2sh/p2wpkh/p2wsh).
	ScriptRuleAddress
	// ScriptRuleTemplate matches a sequence of opcode/push-bytes/push-int
	// wildcards against the script's disassembly.
	ScriptRuleTemplate
)

// AddressFamily names the standard Bitcoin script template a ScriptRuleAddress
// rule classifies against.
type AddressFamily string

const (
	AddressP2PKH  AddressFamily = "p2pkh"
	AddressP2SH   AddressFamily = "p2sh"
	AddressP2WPKH AddressFamily = "p2wpkh"
	AddressP2WSH  AddressFamily = "p2wsh"
)

// HexRuleKind discriminates a ScriptRuleHex comparison.
type HexRuleKind int

const (
	HexStartsWith HexRuleKind = iota
	HexEndsWith
	HexEquals
)

// TemplateOpKind discriminates one element of a ScriptRuleTemplate sequence.
type TemplateOpKind int

const (
	// TemplateExactOp matches a specific opcode value.
	TemplateExactOp TemplateOpKind = iota
	// TemplatePushBytes matches any push-data opcode whose pushed bytes
	// equal Bytes exactly.
	TemplatePushBytes
	// TemplatePushInt matches any push-data opcode of any length; the
	// pushed value itself is not compared. This is the "wildcard" element
	// used to skip over variable-length data (e.g. a signature) in a
	// template.
	TemplatePushInt
)

// TemplateElement is one entry of a ScriptRuleTemplate sequence.
type TemplateElement struct {
	Kind  TemplateOpKind
	Op    byte   // set when Kind == TemplateExactOp
	Bytes []byte // set when Kind == TemplatePushBytes
}

// ScriptRule is the matching rule attached to a MatcherScript variant.
type ScriptRule struct {
	Kind ScriptRuleKind

	// Hex fields, set when Kind == ScriptRuleHex.
	HexKind HexRuleKind
	HexStr  string

	// Address field, set when Kind == ScriptRuleAddress.
	Family AddressFamily

	// Template field, set when Kind == ScriptRuleTemplate.
	Template []TemplateElement
}

// Matcher is the tagged union of predicate matcher families. Exactly one
// group of fields is populated, selected by Kind.
type Matcher struct {
	Kind MatcherKind

	// Stacks: MatcherContractCall
	ContractIdentifier string
	Method             string

	// Stacks: MatcherPrintEvent (reuses ContractIdentifier above)
	Contains string

	// Stacks: MatcherFTEvent / MatcherNFTEvent (reuses AssetIdentifier)
	AssetIdentifier string
	Actions         []string

	// Bitcoin: MatcherScript
	Scope Scope
	Rule  ScriptRule
}

// MatchStacks reports whether tx satisfies a Stacks-domain matcher
// (MatcherContractCall, MatcherPrintEvent, MatcherFTEvent, MatcherNFTEvent,
// MatcherSTXEvent). It panics if called on a MatcherScript matcher; callers
// dispatch by Predicate.Chain before calling.
func (m Matcher) MatchStacks(tx chain.StacksTransaction) bool {
	switch m.Kind {
	case MatcherContractCall:
		return tx.Kind == chain.StacksTxContractCall &&
			tx.ContractIdentifier == m.ContractIdentifier &&
			tx.Method == m.Method
	case MatcherPrintEvent:
		for _, ev := range tx.Events {
			if ev.Kind != chain.StacksEventPrint {
				continue
			}
			if ev.ContractIdentifier != m.ContractIdentifier {
				continue
			}
			if containsSubstring(ev.PrintPayload, m.Contains) {
				return true
			}
		}
		return false
	case MatcherFTEvent:
		return matchTokenEvent(tx, m.AssetIdentifier, m.Actions, isFTEvent)
	case MatcherNFTEvent:
		return matchTokenEvent(tx, m.AssetIdentifier, m.Actions, isNFTEvent)
	case MatcherSTXEvent:
		return matchTokenEvent(tx, "", m.Actions, isSTXEvent)
	default:
		panic("predicate: MatchStacks called on a non-Stacks matcher")
	}
}

func isFTEvent(k chain.StacksEventKind) bool {
	switch k {
	case chain.StacksEventFTTransfer, chain.StacksEventFTMint, chain.StacksEventFTBurn:
		return true
	default:
		return false
	}
}

func isNFTEvent(k chain.StacksEventKind) bool {
	switch k {
	case chain.StacksEventNFTTransfer, chain.StacksEventNFTMint, chain.StacksEventNFTBurn:
		return true
	default:
		return false
	}
}

func isSTXEvent(k chain.StacksEventKind) bool {
	switch k {
	case chain.StacksEventSTXTransfer, chain.StacksEventSTXMint, chain.StacksEventSTXBurn, chain.StacksEventSTXLock:
		return true
	default:
		return false
	}
}

func matchTokenEvent(tx chain.StacksTransaction, assetIdentifier string, actions []string, kindFilter func(chain.StacksEventKind) bool) bool {
	for _, ev := range tx.Events {
		if !kindFilter(ev.Kind) {
			continue
		}
		if assetIdentifier != "" && ev.AssetIdentifier != assetIdentifier {
			continue
		}
		if actionsContain(actions, ev.Kind.Action()) {
			return true
		}
	}
	return false
}

func actionsContain(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

func containsSubstring(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
