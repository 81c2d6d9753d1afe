package styles

import (
	"sort"
	"sync"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"go.uber.org/zap"

	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/ontology"
)

// ResolvedStyle maps property name to the winning declaration value for one
// feature. Produced fresh per query, never persisted.
type ResolvedStyle map[string]string

// PatternRegistrar receives pattern/texture registration requests for the
// rendering collaborator's image-loading facility. The engine calls it at
// most once per unique pattern identifier.
type PatternRegistrar interface {
	RegisterPattern(name, source string) error
}

// Engine loads cascading stylesheets and resolves feature styles against
// them. Load may be called multiple times to layer stylesheets (default
// theme first, map-specific overrides after); the rule set is append-only
// until the first query.
type Engine struct {
	logger    *zap.Logger
	table     *ontology.Table
	registrar PatternRegistrar

	rules   []Rule
	seq     int
	skipped int

	chainMu sync.RWMutex
	chains  map[string]superChain

	patternMu sync.Mutex
	patterns  map[string]string
}

// NewEngine creates a stylesheet engine resolving superclasses against the
// given ontology table. registrar may be nil when no rendering collaborator
// is attached; pattern registrations are then only recorded.
func NewEngine(table *ontology.Table, registrar PatternRegistrar, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:    logger,
		table:     table,
		registrar: registrar,
		chains:    make(map[string]superChain),
		patterns:  make(map[string]string),
	}
}

// Load parses stylesheet text and appends its rules. Rules from later calls
// get higher sequence numbers and so win specificity ties against earlier
// stylesheets. Malformed rule blocks are logged and skipped; parsing
// continues with the remaining blocks. Returns the number of rules added.
func (e *Engine) Load(cssText string) int {
	added := 0
	for _, block := range splitRuleBlocks(cssText) {
		sheet, err := parser.Parse(block)
		if err != nil {
			e.skipped++
			e.logger.Warn("Skipping malformed stylesheet rule",
				zap.String("block", block),
				zap.Error(err))
			continue
		}
		for _, rule := range sheet.Rules {
			added += e.appendRule(rule)
		}
	}
	return added
}

// Skipped returns the number of rule blocks or selectors dropped so far.
func (e *Engine) Skipped() int {
	return e.skipped
}

func (e *Engine) appendRule(rule *css.Rule) int {
	if rule.Kind != css.QualifiedRule {
		e.skipped++
		e.logger.Warn("Skipping unsupported at-rule", zap.String("prelude", rule.Prelude))
		return 0
	}

	decls := make(map[string]string, len(rule.Declarations))
	for _, d := range rule.Declarations {
		if !recognizedProperties[d.Property] {
			e.logger.Debug("Dropping unrecognized style property",
				zap.String("property", d.Property),
				zap.String("selector", rule.Prelude))
			continue
		}
		decls[d.Property] = d.Value
	}
	if len(decls) == 0 {
		return 0
	}

	added := 0
	for _, selector := range rule.Selectors {
		kind, key, err := parseSelector(selector)
		if err != nil {
			e.skipped++
			e.logger.Warn("Skipping stylesheet selector", zap.Error(err))
			continue
		}
		spec := Specificity{0, 1}
		if kind == IDSelector {
			spec = Specificity{1, 0}
		}
		e.rules = append(e.rules, Rule{
			Selector:     selector,
			Kind:         kind,
			Key:          key,
			Declarations: decls,
			Specificity:  spec,
			Sequence:     e.seq,
		})
		e.seq++
		added++
	}
	return added
}

// match pairs a rule with its precedence tier for one feature: 0 for id
// selectors, 1 for the feature's own class, 2 for part-of ancestry, 3 for
// is-a ancestry. Lower tier outranks higher tier; within a tier,
// specificity and then source order decide.
type match struct {
	rule Rule
	tier int
}

const (
	idTier     = 0
	ownTier    = 1
	partOfTier = 2
	isaTier    = 3
)

// ResolveStyle resolves the winning declarations for a feature. Declarations
// merge property-by-property: a higher-precedence match overwrites only the
// properties it mentions. Pattern and texture values trigger an idempotent
// registration with the pattern registrar.
func (e *Engine) ResolveStyle(feature models.Feature) ResolvedStyle {
	matches := e.collectMatches(feature)

	// Apply in ascending precedence so later writes win: tier descending,
	// then specificity ascending, then source order.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].tier != matches[j].tier {
			return matches[i].tier > matches[j].tier
		}
		if matches[i].rule.Specificity != matches[j].rule.Specificity {
			return matches[i].rule.Specificity.Less(matches[j].rule.Specificity)
		}
		return matches[i].rule.Sequence < matches[j].rule.Sequence
	})

	style := make(ResolvedStyle)
	for _, m := range matches {
		for prop, value := range m.rule.Declarations {
			style[prop] = value
		}
	}

	if name, ok := style["pattern"]; ok {
		e.registerPattern(name)
	}
	if name, ok := style["texture"]; ok {
		e.registerPattern(name)
	}
	return style
}

func (e *Engine) collectMatches(feature models.Feature) []match {
	ownClass := ""
	var chain superChain
	if feature.OntologyClass != "" {
		ownClass = ontology.NormalizeKey(feature.OntologyClass)
		chain = e.superclasses(ownClass)
	}

	tierOf := make(map[string]int, len(chain.partOf)+len(chain.isA))
	for _, key := range chain.partOf {
		tierOf[key] = partOfTier
	}
	for _, key := range chain.isA {
		tierOf[key] = isaTier
	}

	var matches []match
	for _, rule := range e.rules {
		switch rule.Kind {
		case IDSelector:
			if rule.Key == feature.ID {
				matches = append(matches, match{rule: rule, tier: idTier})
			}
		case ClassSelector:
			if ownClass != "" && rule.Key == ownClass {
				matches = append(matches, match{rule: rule, tier: ownTier})
			} else if tier, ok := tierOf[rule.Key]; ok {
				matches = append(matches, match{rule: rule, tier: tier})
			}
		}
	}
	return matches
}

// superChain partitions a class's superclasses into the two precedence
// tiers. Ancestry depth within a tier carries no weight; rules matching the
// same tier are ranked by specificity and source order alone.
type superChain struct {
	partOf []string
	isA    []string
}

// superclasses returns the superclass tiers for a class: the whole part-of
// closure, and every ancestor first reached through an is-a edge. Results
// are memoized; the ontology table is immutable post-load so the memo is
// never invalidated. A visited set guards against cycles.
func (e *Engine) superclasses(class string) superChain {
	e.chainMu.RLock()
	chain, ok := e.chains[class]
	e.chainMu.RUnlock()
	if ok {
		return chain
	}

	chain = e.walkSuperclasses(class)

	e.chainMu.Lock()
	e.chains[class] = chain
	e.chainMu.Unlock()
	return chain
}

func (e *Engine) walkSuperclasses(class string) superChain {
	visited := map[string]bool{class: true}
	var partQueue, isaQueue []string
	var chain superChain

	if entity, ok := e.table.Lookup(class); ok {
		partQueue = append(partQueue, entity.PartOf...)
		isaQueue = append(isaQueue, entity.IsA...)
	}

	// Part-of tier: part-of parents of part-of ancestors stay in this tier;
	// their is-a parents fall into the is-a tier.
	for len(partQueue) > 0 {
		key := partQueue[0]
		partQueue = partQueue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true
		chain.partOf = append(chain.partOf, key)
		if entity, ok := e.table.Lookup(key); ok {
			partQueue = append(partQueue, entity.PartOf...)
			isaQueue = append(isaQueue, entity.IsA...)
		}
	}

	// Is-a tier: everything reachable from here ranks below all part-of
	// ancestry, regardless of the relation of later hops.
	for len(isaQueue) > 0 {
		key := isaQueue[0]
		isaQueue = isaQueue[1:]
		if visited[key] {
			continue
		}
		visited[key] = true
		chain.isA = append(chain.isA, key)
		if entity, ok := e.table.Lookup(key); ok {
			isaQueue = append(isaQueue, entity.PartOf...)
			isaQueue = append(isaQueue, entity.IsA...)
		}
	}

	return chain
}

// registerPattern asks the rendering collaborator to load a pattern image
// exactly once per unique pattern identifier.
func (e *Engine) registerPattern(name string) {
	e.patternMu.Lock()
	defer e.patternMu.Unlock()
	if _, done := e.patterns[name]; done {
		return
	}
	source := "patterns/" + name + ".png"
	e.patterns[name] = source
	if e.registrar != nil {
		if err := e.registrar.RegisterPattern(name, source); err != nil {
			e.logger.Warn("Pattern registration failed",
				zap.String("pattern", name),
				zap.Error(err))
		}
	}
}

// Patterns returns the pattern identifiers registered so far, mapped to
// their image source paths.
func (e *Engine) Patterns() map[string]string {
	e.patternMu.Lock()
	defer e.patternMu.Unlock()
	out := make(map[string]string, len(e.patterns))
	for name, source := range e.patterns {
		out[name] = source
	}
	return out
}

// RuleCount returns the number of loaded rules.
func (e *Engine) RuleCount() int {
	return len(e.rules)
}
