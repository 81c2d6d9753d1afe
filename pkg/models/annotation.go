package models

// AnnotationRecord is the structured form of one line of free-text feature
// annotation. ID is set iff the text parsed; Error is set iff it did not.
// Models is always non-nil (empty when no models(...) clause was given).
type AnnotationRecord struct {
	FeatureID  string              `json:"featureId"`
	Text       string              `json:"text"`
	ID         string              `json:"id,omitempty"`
	Properties map[string][]string `json:"properties,omitempty"`
	Models     []string            `json:"models"`
	Label      string              `json:"label,omitempty"`
	Layer      string              `json:"layer"`
	Queryable  bool                `json:"queryable"`
	Error      string              `json:"error,omitempty"`
	URL        string              `json:"url,omitempty"`
}

// Valid reports whether the annotation text parsed successfully.
func (a *AnnotationRecord) Valid() bool {
	return a.Error == ""
}
