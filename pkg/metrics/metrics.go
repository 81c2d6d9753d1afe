// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnnotationParses counts annotation parse attempts by outcome
	// ("ok", "syntax_error", "duplicate_id").
	AnnotationParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmap_annotation_parses_total",
		Help: "Annotation parse attempts by outcome.",
	}, []string{"outcome"})

	// StyleResolutions counts feature style resolution queries per map.
	StyleResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmap_style_resolutions_total",
		Help: "Feature style resolution queries.",
	}, []string{"map"})

	// StylesheetRulesLoaded counts rules accepted into the rule set per map.
	StylesheetRulesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmap_stylesheet_rules_loaded_total",
		Help: "Stylesheet rules loaded.",
	}, []string{"map"})

	// StylesheetRulesSkipped counts malformed rule blocks and unsupported
	// selectors dropped during stylesheet loading.
	StylesheetRulesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flatmap_stylesheet_rules_skipped_total",
		Help: "Malformed stylesheet rules skipped.",
	}, []string{"map"})

	// PatternRegistrations counts unique pattern image registrations.
	PatternRegistrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flatmap_pattern_registrations_total",
		Help: "Unique pattern image registrations requested from the renderer.",
	})
)
