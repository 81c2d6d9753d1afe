package annotation

import (
	"fmt"
	"sync"

	"github.com/celldl/flatmap-engine/pkg/apperrors"
	"github.com/celldl/flatmap-engine/pkg/models"
)

// Store holds the annotations of one flatmap, indexed both by feature
// identifier and by derived URL. The two indexes are maintained together by
// the Set operation; callers never touch them independently.
//
// Only valid records enter the URL index: URL uniqueness is an invariant
// among non-error annotations, while error records stay addressable by
// feature so the viewer can render their error state.
type Store struct {
	mu        sync.RWMutex
	source    string
	byFeature map[string]*models.AnnotationRecord
	byURL     map[string]*models.AnnotationRecord
}

// NewStore creates an empty annotation store for a map identified by source.
// The record URL for a feature is derived as source/layer/id.
func NewStore(source string) *Store {
	return &Store{
		source:    source,
		byFeature: make(map[string]*models.AnnotationRecord),
		byURL:     make(map[string]*models.AnnotationRecord),
	}
}

// Set parses text and stores the resulting record for featureID. Empty text
// deletes the feature's annotation from both indexes. A valid record whose
// derived URL collides with a different feature's annotation is rejected
// with apperrors.ErrDuplicateAnnotationID and the prior records are left
// unchanged.
func (s *Store) Set(featureID, layer, text string) (models.AnnotationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" {
		s.removeLocked(featureID)
		return models.AnnotationRecord{FeatureID: featureID, Layer: layer, Models: []string{}}, nil
	}

	rec := Parse(s.source, layer, featureID, text)

	if rec.Valid() {
		if existing, ok := s.byURL[rec.URL]; ok && existing.FeatureID != featureID {
			return models.AnnotationRecord{}, fmt.Errorf(
				"duplicate-id: annotation %s already used by feature %s: %w",
				rec.URL, existing.FeatureID, apperrors.ErrDuplicateAnnotationID)
		}
	}

	s.removeLocked(featureID)
	s.byFeature[featureID] = &rec
	if rec.Valid() {
		s.byURL[rec.URL] = &rec
	}
	return rec, nil
}

// Delete removes the feature's annotation from both indexes.
func (s *Store) Delete(featureID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(featureID)
}

// removeLocked deletes both index entries for a feature as one unit.
func (s *Store) removeLocked(featureID string) {
	if old, ok := s.byFeature[featureID]; ok {
		delete(s.byFeature, featureID)
		if old.Valid() {
			delete(s.byURL, old.URL)
		}
	}
}

// GetByFeature returns the annotation record for a feature identifier.
func (s *Store) GetByFeature(featureID string) (models.AnnotationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byFeature[featureID]
	if !ok {
		return models.AnnotationRecord{}, false
	}
	return *rec, true
}

// GetByURL returns the annotation record with the given derived URL.
func (s *Store) GetByURL(url string) (models.AnnotationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byURL[url]
	if !ok {
		return models.AnnotationRecord{}, false
	}
	return *rec, true
}

// All returns every stored annotation record, error records included.
func (s *Store) All() []models.AnnotationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AnnotationRecord, 0, len(s.byFeature))
	for _, rec := range s.byFeature {
		out = append(out, *rec)
	}
	return out
}

// Len returns the number of annotated features.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byFeature)
}

// Source returns the map source this store derives annotation URLs from.
func (s *Store) Source() string {
	return s.source
}
