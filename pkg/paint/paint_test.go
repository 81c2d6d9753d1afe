package paint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/styles"
)

func TestBorderColourPriority(t *testing.T) {
	tests := []struct {
		name  string
		state models.FeatureState
		want  string
	}{
		{"error wins over highlight", models.FeatureState{AnnotationError: true, Highlighted: true}, ErrorColour},
		{"highlighted", models.FeatureState{Highlighted: true}, HighlightColour},
		{"default", models.FeatureState{}, DefaultLineColour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BorderColour(tt.state))
		})
	}
}

func TestLineColourFallbacks(t *testing.T) {
	style := styles.ResolvedStyle{"color": "teal", "stroke-color": "navy"}

	assert.Equal(t, "navy", LineColour(style, models.FeatureState{}), "stroke-color beats color")
	assert.Equal(t, "teal", LineColour(styles.ResolvedStyle{"color": "teal"}, models.FeatureState{}))
	assert.Equal(t, DefaultLineColour, LineColour(styles.ResolvedStyle{}, models.FeatureState{}))
	assert.Equal(t, ErrorColour, LineColour(style, models.FeatureState{AnnotationError: true}),
		"error colour overrides any declaration")
	assert.Equal(t, HighlightColour, LineColour(style, models.FeatureState{Highlighted: true}))
}

func TestOpacity(t *testing.T) {
	active := Options{LayerActive: true}
	annotating := Options{LayerActive: true, Annotating: true}

	assert.Equal(t, 0.0, Opacity(Options{}, models.FeatureState{Selected: true}),
		"inactive layer hides everything")
	assert.Equal(t, 1.0, Opacity(active, models.FeatureState{}))
	assert.Equal(t, 0.9, Opacity(active, models.FeatureState{Highlighted: true}))
	assert.Equal(t, 0.3, Opacity(annotating, models.FeatureState{}),
		"annotation mode fades unannotated features")
	assert.Equal(t, 0.8, Opacity(annotating, models.FeatureState{Annotated: true}))
	assert.Equal(t, 0.8, Opacity(annotating, models.FeatureState{AnnotationError: true}))
}

func TestWidthExpression(t *testing.T) {
	expr := WidthExpression(2.0, models.FeatureState{Selected: true})

	assert.Equal(t, "interpolate", expr[0])
	assert.Equal(t, []any{"exponential", 1.4}, expr[1])
	assert.Equal(t, []any{"zoom"}, expr[2])
	assert.Equal(t, 2.0, expr[3])
	assert.InDelta(t, 3.6, expr[4], 1e-9, "selected scale applied to base width")
	assert.Equal(t, 10.0, expr[5])
	assert.InDelta(t, 14.4, expr[6], 1e-9)
}

func TestWidthScalePriority(t *testing.T) {
	selected := models.FeatureState{Selected: true, Highlighted: true, Annotated: true}
	assert.InDelta(t, 1.8, widthScale(selected), 1e-9, "selected beats highlighted and annotated")
	assert.InDelta(t, 1.4, widthScale(models.FeatureState{Highlighted: true, Annotated: true}), 1e-9)
	assert.InDelta(t, 1.2, widthScale(models.FeatureState{Annotated: true}), 1e-9)
	assert.InDelta(t, 1.0, widthScale(models.FeatureState{}), 1e-9)
}

func TestForFeature(t *testing.T) {
	style := styles.ResolvedStyle{
		"color":        "teal",
		"stroke-width": "2px",
		"opacity":      "0.5",
	}
	props := ForFeature(style, Options{LayerActive: true}, models.FeatureState{})

	assert.Equal(t, "teal", props.Colour)
	assert.InDelta(t, 0.5, props.Opacity, 1e-9)
	assert.Equal(t, 2.0, props.BorderWidth[3], "declared stroke-width becomes the base width")
}

func TestForFeatureDeterministic(t *testing.T) {
	style := styles.ResolvedStyle{"color": "teal"}
	opts := Options{LayerActive: true, Annotating: true}
	state := models.FeatureState{Annotated: true}

	assert.Equal(t, ForFeature(style, opts, state), ForFeature(style, opts, state))
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"2", 2, false},
		{"2.5px", 2.5, false},
		{" 0.3 ", 0.3, false},
		{"px", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseScalar(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}
