// Package ontology provides the anatomical ontology table used for style
// resolution: identifier normalization, entity lookup, and the part-of / is-a
// superclass relations.
package ontology

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entity is one ontology term. Immutable once loaded; shared read-only by
// all consumers.
type Entity struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	PartOf []string `json:"part_of"`
	IsA    []string `json:"is_a"`
}

// paddedDigits is the canonical width of the numeric part of an identifier.
const paddedDigits = 7

// NormalizeKey rewrites the two textual forms of an UBERON identifier
// (UBERON:NNN and UBERON_NNN) to the single canonical UBERON_NNNNNNN form,
// zero-padding shorter numeric parts to seven digits. Identifiers with other
// prefixes pass through unchanged.
//
// NormalizeKey("UBERON:388") == NormalizeKey("UBERON_0000388") == "UBERON_0000388"
func NormalizeKey(key string) string {
	const prefix = "UBERON"
	rest, ok := splitPrefixed(key, prefix)
	if !ok {
		return key
	}
	if len(rest) < paddedDigits {
		rest = strings.Repeat("0", paddedDigits-len(rest)) + rest
	}
	return prefix + "_" + rest
}

// splitPrefixed returns the part after "PREFIX:" or "PREFIX_", and whether
// the key had that shape.
func splitPrefixed(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) || len(key) <= len(prefix) {
		return "", false
	}
	switch key[len(prefix)] {
	case ':', '_':
		return key[len(prefix)+1:], true
	}
	return "", false
}

// Table is an immutable ontology table keyed by normalized identifier.
// The zero value is an empty table; lookups on it miss.
type Table struct {
	entities map[string]Entity
}

// rawEntity matches the on-disk JSON shape: identifier -> term fields.
type rawEntity struct {
	Label  string   `json:"label"`
	PartOf []string `json:"part_of"`
	IsA    []string `json:"is_a"`
}

// NewTable builds a table from an identifier -> entity mapping. Keys are
// normalized; entity relation lists are copied so later mutation of the
// input cannot reach the table.
func NewTable(entities map[string]Entity) *Table {
	t := &Table{entities: make(map[string]Entity, len(entities))}
	for key, e := range entities {
		norm := NormalizeKey(key)
		e.ID = norm
		e.PartOf = normalizeAll(e.PartOf)
		e.IsA = normalizeAll(e.IsA)
		t.entities[norm] = e
	}
	return t
}

// ParseTable decodes an ontology table from its JSON form: an object mapping
// identifier -> {label, part_of, is_a}.
func ParseTable(data []byte) (*Table, error) {
	var raw map[string]rawEntity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode ontology table: %w", err)
	}
	entities := make(map[string]Entity, len(raw))
	for key, r := range raw {
		entities[key] = Entity{
			Label:  r.Label,
			PartOf: r.PartOf,
			IsA:    r.IsA,
		}
	}
	return NewTable(entities), nil
}

// LoadTable reads an ontology table from a JSON file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ontology table %s: %w", path, err)
	}
	return ParseTable(data)
}

// Lookup returns the entity for the given identifier, normalizing it first.
// A miss is a valid result: the feature simply has no ontology
// classification and therefore no superclasses.
func (t *Table) Lookup(key string) (Entity, bool) {
	if t == nil || t.entities == nil {
		return Entity{}, false
	}
	e, ok := t.entities[NormalizeKey(key)]
	return e, ok
}

// Len returns the number of entities in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entities)
}

func normalizeAll(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = NormalizeKey(k)
	}
	return out
}
