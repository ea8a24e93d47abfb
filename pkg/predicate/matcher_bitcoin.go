package predicate

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/goran-ethernal/chainobserver/pkg/chain"
)

// legacyScriptVersion is the script version passed to the tokenizer; every
// script this matcher inspects is a pre-Taproot legacy/witness script.
const legacyScriptVersion uint16 = 0

// MatchBitcoin reports whether tx satisfies a MatcherScript rule: the rule
// is applied to every input or output script according to m.Scope, matching
// on the first hit.
func (m Matcher) MatchBitcoin(tx chain.BitcoinTransaction) bool {
	if m.Kind != MatcherScript {
		panic("predicate: MatchBitcoin called on a non-script matcher")
	}

	scripts := scriptsInScope(tx, m.Scope)
	for _, scriptHex := range scripts {
		if matchScriptRule(m.Rule, scriptHex) {
			return true
		}
	}
	return false
}

func scriptsInScope(tx chain.BitcoinTransaction, scope Scope) []string {
	var out []string
	switch scope {
	case ScopeInputs:
		for _, in := range tx.Inputs {
			out = append(out, in.ScriptHex)
		}
	case ScopeOutputs:
		for _, o := range tx.Outputs {
			out = append(out, o.ScriptHex)
		}
	}
	return out
}

func matchScriptRule(rule ScriptRule, scriptHex string) bool {
	switch rule.Kind {
	case ScriptRuleHex:
		return matchHexRule(rule, scriptHex)
	case ScriptRuleAddress:
		return matchAddressFamily(rule.Family, scriptHex)
	case ScriptRuleTemplate:
		return matchTemplate(rule.Template, scriptHex)
	default:
		return false
	}
}

func matchHexRule(rule ScriptRule, scriptHex string) bool {
	needle := strings.ToLower(rule.HexStr)
	haystack := strings.ToLower(scriptHex)

	switch rule.HexKind {
	case HexStartsWith:
		return strings.HasPrefix(haystack, needle)
	case HexEndsWith:
		return strings.HasSuffix(haystack, needle)
	case HexEquals:
		return haystack == needle
	default:
		return false
	}
}

func matchAddressFamily(family AddressFamily, scriptHex string) bool {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return false
	}

	class := txscript.GetScriptClass(script)
	switch family {
	case AddressP2PKH:
		return class == txscript.PubKeyHashTy
	case AddressP2SH:
		return class == txscript.ScriptHashTy
	case AddressP2WPKH:
		return class == txscript.WitnessV0PubKeyHashTy
	case AddressP2WSH:
		return class == txscript.WitnessV0ScriptHashTy
	default:
		return false
	}
}

// matchTemplate tokenizes scriptHex's raw bytes and compares each element
// against the corresponding TemplateElement, in order. TemplatePushInt
// elements match any push-data opcode regardless of the pushed value,
// letting a template skip over variable-length data like a signature.
func matchTemplate(template []TemplateElement, scriptHex string) bool {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return false
	}

	tokenizer := txscript.MakeScriptTokenizer(legacyScriptVersion, script)

	for _, elem := range template {
		if !tokenizer.Next() {
			return false
		}
		if tokenizer.Err() != nil {
			return false
		}

		switch elem.Kind {
		case TemplateExactOp:
			if tokenizer.Opcode() != elem.Op {
				return false
			}
		case TemplatePushBytes:
			if !bytes.Equal(tokenizer.Data(), elem.Bytes) {
				return false
			}
		case TemplatePushInt:
			if len(tokenizer.Data()) == 0 && !isPushOpcode(tokenizer.Opcode()) {
				return false
			}
		}
	}

	// A template matches only if it accounts for the entire script; a
	// shorter template that happens to prefix-match a longer script is not
	// a hit.
	return !tokenizer.Next() && tokenizer.Err() == nil
}

func isPushOpcode(op byte) bool {
	return op <= txscript.OP_PUSHDATA4
}
