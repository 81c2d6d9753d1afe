// Package styles implements the flatmap stylesheet engine: CSS-like rule
// loading, selector specificity, and feature style resolution across the
// anatomical ontology hierarchy.
package styles

import (
	"fmt"
	"strings"

	"github.com/celldl/flatmap-engine/pkg/ontology"
)

// SelectorKind distinguishes the two supported simple selectors.
type SelectorKind int

const (
	// ClassSelector is ".ONTOLOGY_ID"; it matches a feature's own ontology
	// class or any class in its superclass chain.
	ClassSelector SelectorKind = iota
	// IDSelector is "#IDENTIFIER"; it matches a feature's own identifier
	// only, never via superclasses.
	IDSelector
)

// Specificity is the comparable (id-count, class-count) tuple computed at
// rule-load time. For the supported selectors it is (1,0) or (0,1).
type Specificity [2]int

// Less reports whether s ranks below other.
func (s Specificity) Less(other Specificity) bool {
	if s[0] != other[0] {
		return s[0] < other[0]
	}
	return s[1] < other[1]
}

// Rule is one parsed stylesheet rule for a single selector. Immutable once
// parsed; Sequence is the rule's source order across all loaded stylesheets,
// used only as the final tie-break.
type Rule struct {
	Selector     string
	Kind         SelectorKind
	Key          string
	Declarations map[string]string
	Specificity  Specificity
	Sequence     int
}

// recognizedProperties is the declaration vocabulary the engine accepts.
var recognizedProperties = map[string]bool{
	"color":          true,
	"opacity":        true,
	"texture":        true,
	"stroke-color":   true,
	"stroke-dash":    true,
	"stroke-opacity": true,
	"stroke-width":   true,
	"pattern":        true,
}

// parseSelector validates a simple class or id selector and returns its kind
// and lookup key. Class keys are normalized so ".UBERON_0000388" matches a
// feature classified as "UBERON:388".
func parseSelector(selector string) (SelectorKind, string, error) {
	sel := strings.TrimSpace(selector)
	if len(sel) < 2 {
		return 0, "", fmt.Errorf("invalid selector %q", selector)
	}
	name := sel[1:]
	if strings.ContainsAny(name, " \t>+~[.#") {
		return 0, "", fmt.Errorf("unsupported selector %q: only simple class and id selectors are allowed", selector)
	}
	switch sel[0] {
	case '.':
		return ClassSelector, ontology.NormalizeKey(name), nil
	case '#':
		return IDSelector, name, nil
	}
	return 0, "", fmt.Errorf("unsupported selector %q", selector)
}

// splitRuleBlocks splits stylesheet text into top-level rule blocks so that
// one malformed block can be skipped without abandoning the rest of the
// sheet. Braces inside comments and quoted strings do not count.
func splitRuleBlocks(cssText string) []string {
	var blocks []string
	depth := 0
	start := 0
	i := 0
	for i < len(cssText) {
		switch c := cssText[i]; c {
		case '/':
			if i+1 < len(cssText) && cssText[i+1] == '*' {
				end := strings.Index(cssText[i+2:], "*/")
				if end < 0 {
					i = len(cssText)
					continue
				}
				i += end + 4
				continue
			}
		case '"', '\'':
			quote := c
			i++
			for i < len(cssText) && cssText[i] != quote {
				if cssText[i] == '\\' {
					i++
				}
				i++
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				block := strings.TrimSpace(cssText[start : i+1])
				if block != "" {
					blocks = append(blocks, block)
				}
				start = i + 1
			}
		}
		i++
	}
	if tail := strings.TrimSpace(cssText[start:]); tail != "" {
		blocks = append(blocks, tail)
	}
	return blocks
}
