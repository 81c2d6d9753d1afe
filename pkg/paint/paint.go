// Package paint translates resolved style declarations and feature display
// flags into paint-ready primitive values for the rendering collaborator.
// Everything here is a deterministic table lookup or arithmetic; no state.
package paint

import (
	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/styles"
)

// Colour constants for feature borders and lines.
const (
	ErrorColour       = "#ff8888"
	HighlightColour   = "#0090ff"
	DefaultLineColour = "#444444"
)

// Width multipliers per display flag, strict priority selected >
// highlighted > annotated > default.
const (
	selectedWidthScale    = 1.8
	highlightedWidthScale = 1.4
	annotatedWidthScale   = 1.2
	defaultWidthScale     = 1.0
)

// Opacity levels combining layer activity and annotation mode with the
// feature flags.
const (
	hiddenOpacity      = 0.0
	fadedOpacity       = 0.3
	annotatingOpacity  = 0.8
	fullOpacity        = 1.0
	highlightedOpacity = 0.9
)

// Zoom interpolation bounds for width expressions.
const (
	interpolationBase = 1.4
	minZoom           = 2.0
	maxZoom           = 10.0
	maxZoomWidthScale = 4.0
)

// Options carries the viewer-wide toggles that modulate paint values.
type Options struct {
	LayerActive bool
	Annotating  bool
}

// BorderColour returns the border colour for a feature, in strict priority
// order: annotation-error > highlighted > default.
func BorderColour(state models.FeatureState) string {
	switch {
	case state.AnnotationError:
		return ErrorColour
	case state.Highlighted:
		return HighlightColour
	default:
		return DefaultLineColour
	}
}

// LineColour resolves the line colour from declarations, falling back to
// flag-driven colours when the stylesheet supplied none. Declared
// stroke-color wins over color.
func LineColour(style styles.ResolvedStyle, state models.FeatureState) string {
	if state.AnnotationError {
		return ErrorColour
	}
	if state.Highlighted {
		return HighlightColour
	}
	if c, ok := style["stroke-color"]; ok {
		return c
	}
	if c, ok := style["color"]; ok {
		return c
	}
	return DefaultLineColour
}

// widthScale returns the width multiplier for the feature flags.
func widthScale(state models.FeatureState) float64 {
	switch {
	case state.Selected:
		return selectedWidthScale
	case state.Highlighted:
		return highlightedWidthScale
	case state.Annotated:
		return annotatedWidthScale
	default:
		return defaultWidthScale
	}
}

// Opacity returns the paint opacity for a feature. Inactive layers hide
// their features entirely; annotation mode fades everything except the
// feature being worked on.
func Opacity(opts Options, state models.FeatureState) float64 {
	if !opts.LayerActive {
		return hiddenOpacity
	}
	if opts.Annotating {
		if state.Selected || state.Annotated || state.AnnotationError {
			return annotatingOpacity
		}
		return fadedOpacity
	}
	switch {
	case state.Selected:
		return fullOpacity
	case state.Highlighted:
		return highlightedOpacity
	default:
		return fullOpacity
	}
}

// WidthExpression builds the rendering engine's zoom-interpolated width
// expression for a base width scaled by the feature flags:
//
//	["interpolate", ["exponential", 1.4], ["zoom"], z0, w, z1, w*scale]
func WidthExpression(baseWidth float64, state models.FeatureState) []any {
	width := baseWidth * widthScale(state)
	return []any{
		"interpolate",
		[]any{"exponential", interpolationBase},
		[]any{"zoom"},
		minZoom, width,
		maxZoom, width * maxZoomWidthScale,
	}
}

// Properties is the paint-property update handed to the rendering
// collaborator for one feature.
type Properties struct {
	Colour      string  `json:"colour"`
	BorderWidth []any   `json:"borderWidth"`
	Opacity     float64 `json:"opacity"`
}

// ForFeature composes the full paint-property set for one feature from its
// resolved style, display flags, and viewer options.
func ForFeature(style styles.ResolvedStyle, opts Options, state models.FeatureState) Properties {
	base := 1.0
	if w, ok := style["stroke-width"]; ok {
		if parsed, err := parseScalar(w); err == nil && parsed > 0 {
			base = parsed
		}
	}
	return Properties{
		Colour:      LineColour(style, state),
		BorderWidth: WidthExpression(base, state),
		Opacity:     declaredOpacity(style) * Opacity(opts, state),
	}
}

// declaredOpacity reads the stylesheet opacity, defaulting to fully opaque.
// stroke-opacity wins over opacity for line paint.
func declaredOpacity(style styles.ResolvedStyle) float64 {
	for _, prop := range []string{"stroke-opacity", "opacity"} {
		if v, ok := style[prop]; ok {
			if parsed, err := parseScalar(v); err == nil && parsed >= 0 && parsed <= 1 {
				return parsed
			}
		}
	}
	return fullOpacity
}
