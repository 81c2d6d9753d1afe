package models

// GeometryType classifies the renderable geometry of a flatmap feature.
type GeometryType string

const (
	GeometryPolygon    GeometryType = "Polygon"
	GeometryLineString GeometryType = "LineString"
	GeometryPoint      GeometryType = "Point"
)

// IsValid reports whether g is one of the recognized geometry types.
func (g GeometryType) IsValid() bool {
	switch g {
	case GeometryPolygon, GeometryLineString, GeometryPoint:
		return true
	}
	return false
}

// Feature describes a flatmap feature for style resolution. OntologyClass is
// empty when the feature carries no anatomical classification; Layer names
// the manifest layer the feature is drawn on.
type Feature struct {
	ID            string       `json:"id"`
	OntologyClass string       `json:"ontologyClass,omitempty"`
	GeometryType  GeometryType `json:"geometryType"`
	Layer         string       `json:"layer,omitempty"`
}

// FeatureState holds the per-feature display flags that influence paint
// properties. Priority among flags is fixed: selected > highlighted >
// annotated, with annotation errors overriding colour choices.
type FeatureState struct {
	Selected        bool `json:"selected"`
	Highlighted     bool `json:"highlighted"`
	Annotated       bool `json:"annotated"`
	AnnotationError bool `json:"annotationError"`
}
