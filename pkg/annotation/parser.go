// Package annotation turns free-text feature annotations into structured
// records and maintains the per-map annotation store.
//
// The grammar for one annotation line:
//
//	annotation   := feature_id (ws spec)*
//	feature_id   := '#' identifier
//	spec         := node_spec | edge_spec | models_spec | label_spec | routing_spec
//	node_spec    := 'node' '(' neural_node ')'
//	edge_spec    := 'edge' '(' feature_id (',' feature_id)* ')'
//	models_spec  := 'models' '(' ontology_id (',' ontology_id)* ')'
//	label_spec   := 'label' '(' [^)]+ ')'
//	routing_spec := ('source'|'target'|'via') '(' feature_id ')'
//	ontology_id  := ('FMA'|'ILX'|'UBERON') ':' identifier
//	identifier   := alnum (alnum | '.' | '/' | ':' | '-' | '_')*
package annotation

import (
	"fmt"
	"strings"

	"github.com/celldl/flatmap-engine/pkg/models"
)

// SyntaxError reports where and why annotation text failed to parse.
// Syntax errors are data carried on the produced record, never panics.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// neuralNodeKinds is the closed set of values accepted by node(...).
var neuralNodeKinds = map[string]bool{
	"soma":     true,
	"axon":     true,
	"dendrite": true,
	"synapse":  true,
	"junction": true,
}

// ontologyPrefixes are the namespaces accepted by models(...).
var ontologyPrefixes = map[string]bool{
	"FMA":    true,
	"ILX":    true,
	"UBERON": true,
}

// Parse parses one line of annotation text for the given feature and returns
// the structured record. On grammar failure the record carries the error
// message and no identifier or properties; Models is always non-nil.
// The record URL is derived as source/layer/id for valid records.
func Parse(source, layer, featureID, text string) models.AnnotationRecord {
	rec := models.AnnotationRecord{
		FeatureID: featureID,
		Text:      text,
		Layer:     layer,
		Models:    []string{},
	}

	id, props, err := ParseText(text)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	rec.ID = id
	rec.Properties = props
	if m := props["models"]; len(m) > 0 {
		rec.Models = append(rec.Models, m...)
	}
	if l := props["label"]; len(l) > 0 {
		rec.Label = l[len(l)-1]
	}
	rec.Queryable = len(rec.Models) > 0
	rec.URL = fmt.Sprintf("%s/%s/%s", source, layer, id)
	return rec
}

// ParseText parses annotation text into a feature identifier and property
// map. The returned error is always a *SyntaxError; repeated clauses of the
// same property append to that property's value list.
func ParseText(text string) (string, map[string][]string, error) {
	p := &parser{input: text}

	p.skipSpace()
	if p.eof() {
		return "", nil, p.errorf("empty annotation")
	}

	id, err := p.featureID()
	if err != nil {
		return "", nil, err
	}

	props := make(map[string][]string)
	for {
		mark := p.pos
		p.skipSpace()
		if p.eof() {
			break
		}
		if p.pos == mark {
			return "", nil, p.errorf("expected whitespace before %q", p.rest())
		}
		if err := p.spec(props); err != nil {
			return "", nil, err
		}
	}

	return id, props, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() byte {
	return p.input[p.pos]
}

func (p *parser) rest() string {
	r := p.input[p.pos:]
	if len(r) > 12 {
		r = r[:12]
	}
	return r
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	if p.eof() || p.peek() != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isIdentChar(c byte) bool {
	return isAlnum(c) || c == '.' || c == '/' || c == ':' || c == '-' || c == '_'
}

// identifier := alnum (alnum | '.' | '/' | ':' | '-' | '_')*
func (p *parser) identifier() (string, error) {
	if p.eof() || !isAlnum(p.peek()) {
		return "", p.errorf("expected identifier")
	}
	start := p.pos
	p.pos++
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	return p.input[start:p.pos], nil
}

// featureID := '#' identifier; the leading '#' is not part of the value.
func (p *parser) featureID() (string, error) {
	if err := p.expect('#'); err != nil {
		return "", p.errorf("expected feature identifier starting with '#'")
	}
	return p.identifier()
}

// word reads a bare clause name (letters only).
func (p *parser) word() (string, error) {
	start := p.pos
	for !p.eof() && p.peek() >= 'a' && p.peek() <= 'z' {
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected annotation property")
	}
	return p.input[start:p.pos], nil
}

func (p *parser) spec(props map[string][]string) error {
	name, err := p.word()
	if err != nil {
		return err
	}

	switch name {
	case "node":
		return p.nodeSpec(props)
	case "edge":
		return p.edgeSpec(props)
	case "models":
		return p.modelsSpec(props)
	case "label":
		return p.labelSpec(props)
	case "source", "target", "via":
		return p.routingSpec(name, props)
	default:
		return p.errorf("unknown annotation property %q", name)
	}
}

func (p *parser) nodeSpec(props map[string][]string) error {
	if err := p.expect('('); err != nil {
		return err
	}
	kind, err := p.identifier()
	if err != nil {
		return err
	}
	if !neuralNodeKinds[kind] {
		return p.errorf("unknown node kind %q", kind)
	}
	if err := p.expect(')'); err != nil {
		return err
	}
	props["node"] = append(props["node"], kind)
	return nil
}

func (p *parser) edgeSpec(props map[string][]string) error {
	if err := p.expect('('); err != nil {
		return err
	}
	for {
		p.skipSpace()
		id, err := p.featureID()
		if err != nil {
			return err
		}
		props["edge"] = append(props["edge"], id)
		p.skipSpace()
		if p.eof() || p.peek() != ',' {
			break
		}
		p.pos++
	}
	return p.expect(')')
}

func (p *parser) modelsSpec(props map[string][]string) error {
	if err := p.expect('('); err != nil {
		return err
	}
	for {
		p.skipSpace()
		id, err := p.ontologyID()
		if err != nil {
			return err
		}
		props["models"] = append(props["models"], id)
		p.skipSpace()
		if p.eof() || p.peek() != ',' {
			break
		}
		p.pos++
	}
	return p.expect(')')
}

// ontologyID := ('FMA'|'ILX'|'UBERON') ':' identifier
func (p *parser) ontologyID() (string, error) {
	start := p.pos
	id, err := p.identifier()
	if err != nil {
		return "", err
	}
	prefix, rest, found := strings.Cut(id, ":")
	if !found || rest == "" || !ontologyPrefixes[prefix] {
		p.pos = start
		return "", p.errorf("invalid ontology identifier %q", id)
	}
	return id, nil
}

// labelSpec reads label(...) with a raw [^)]+ value.
func (p *parser) labelSpec(props map[string][]string) error {
	if err := p.expect('('); err != nil {
		return err
	}
	end := strings.IndexByte(p.input[p.pos:], ')')
	if end < 0 {
		return p.errorf("unterminated label")
	}
	if end == 0 {
		return p.errorf("empty label")
	}
	value := p.input[p.pos : p.pos+end]
	p.pos += end + 1
	props["label"] = append(props["label"], value)
	return nil
}

func (p *parser) routingSpec(name string, props map[string][]string) error {
	if err := p.expect('('); err != nil {
		return err
	}
	id, err := p.featureID()
	if err != nil {
		return err
	}
	if err := p.expect(')'); err != nil {
		return err
	}
	props[name] = append(props[name], id)
	return nil
}
