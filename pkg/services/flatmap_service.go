package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/celldl/flatmap-engine/pkg/annotation"
	"github.com/celldl/flatmap-engine/pkg/apperrors"
	"github.com/celldl/flatmap-engine/pkg/config"
	"github.com/celldl/flatmap-engine/pkg/logging"
	"github.com/celldl/flatmap-engine/pkg/metrics"
	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/ontology"
	"github.com/celldl/flatmap-engine/pkg/paint"
	"github.com/celldl/flatmap-engine/pkg/repositories"
	"github.com/celldl/flatmap-engine/pkg/styles"
)

// StyleResult is the answer to one feature style query: the winning
// declarations plus the paint-property update for the rendering collaborator.
type StyleResult struct {
	Feature models.Feature       `json:"feature"`
	Style   styles.ResolvedStyle `json:"style"`
	Paint   paint.Properties     `json:"paint"`
	Border  string               `json:"border"`
}

// FlatmapService exposes per-map annotation and style-resolution operations.
type FlatmapService interface {
	Manifest(ctx context.Context, mapID string) (*Manifest, error)
	Annotations(ctx context.Context, mapID string) ([]models.AnnotationRecord, error)
	Annotation(ctx context.Context, mapID, featureID string) (models.AnnotationRecord, error)
	SetAnnotation(ctx context.Context, mapID, featureID, layer, text string) (models.AnnotationRecord, error)
	ResolveStyle(ctx context.Context, mapID string, feature models.Feature, opts paint.Options, state models.FeatureState) (StyleResult, error)
	Patterns(ctx context.Context, mapID string) (map[string]string, error)
}

type flatmapService struct {
	logger    *zap.Logger
	cfg       config.FlatmapConfig
	repo      repositories.AnnotationRepository
	registrar styles.PatternRegistrar

	mu   sync.Mutex
	maps map[string]*flatmapState
}

// flatmapState is the loaded state of one map. The once gate gives
// ensure-loaded its mutual-exclusion semantics: concurrent callers wait for
// the in-flight load instead of duplicating it.
type flatmapState struct {
	once     sync.Once
	err      error
	manifest *Manifest
	engine   *styles.Engine
	store    *annotation.Store
}

// NewFlatmapService creates the flatmap service. repo may be nil when
// annotation persistence is disabled; registrar may be nil when no rendering
// collaborator is attached.
func NewFlatmapService(
	cfg config.FlatmapConfig,
	repo repositories.AnnotationRepository,
	registrar styles.PatternRegistrar,
	logger *zap.Logger,
) FlatmapService {
	return &flatmapService{
		logger:    logger,
		cfg:       cfg,
		repo:      repo,
		registrar: registrar,
		maps:      make(map[string]*flatmapState),
	}
}

var _ FlatmapService = (*flatmapService)(nil)

// state returns the map's state holder, creating it on first reference.
func (s *flatmapService) state(mapID string) *flatmapState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.maps[mapID]
	if !ok {
		st = &flatmapState{}
		s.maps[mapID] = st
	}
	return st
}

// ensureLoaded loads the map's manifest, ontology table, stylesheets and
// persisted annotations exactly once. A failed load stays failed; resource
// faults propagate to every waiting caller.
func (s *flatmapService) ensureLoaded(ctx context.Context, mapID string) (*flatmapState, error) {
	st := s.state(mapID)
	st.once.Do(func() {
		st.err = s.load(ctx, mapID, st)
	})
	if st.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrMapNotLoaded, mapID, st.err)
	}
	return st, nil
}

func (s *flatmapService) load(ctx context.Context, mapID string, st *flatmapState) error {
	mapDir := filepath.Join(s.cfg.MapsRoot, mapID)

	manifest, err := LoadManifest(filepath.Join(mapDir, "manifest.yaml"))
	if err != nil {
		return err
	}
	st.manifest = manifest

	table := &ontology.Table{}
	if manifest.Ontology != "" {
		table, err = ontology.LoadTable(filepath.Join(mapDir, manifest.Ontology))
		if err != nil {
			return err
		}
	}

	st.engine = styles.NewEngine(table, s.countingRegistrar(), s.logger)

	if s.cfg.DefaultStylesheet != "" {
		if err := s.loadStylesheet(st.engine, mapID, s.cfg.DefaultStylesheet); err != nil {
			return err
		}
	}
	for _, sheet := range manifest.Stylesheets {
		if err := s.loadStylesheet(st.engine, mapID, filepath.Join(mapDir, sheet)); err != nil {
			return err
		}
	}

	st.store = annotation.NewStore(manifest.Source)

	if err := s.restoreAnnotations(ctx, mapID, st); err != nil {
		return err
	}

	s.logger.Info("Flatmap loaded",
		zap.String("map", mapID),
		zap.Int("ontology_terms", table.Len()),
		zap.Int("style_rules", st.engine.RuleCount()),
		zap.Int("annotations", st.store.Len()))
	return nil
}

func (s *flatmapService) loadStylesheet(engine *styles.Engine, mapID, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read stylesheet %s: %w", path, err)
	}
	skippedBefore := engine.Skipped()
	added := engine.Load(string(data))
	metrics.StylesheetRulesLoaded.WithLabelValues(mapID).Add(float64(added))
	metrics.StylesheetRulesSkipped.WithLabelValues(mapID).Add(float64(engine.Skipped() - skippedBefore))
	return nil
}

// restoreAnnotations replays persisted annotation texts through the parser
// and store. A row that no longer parses or collides is logged and skipped;
// stored history must not prevent a map from loading.
func (s *flatmapService) restoreAnnotations(ctx context.Context, mapID string, st *flatmapState) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.GetByMap(ctx, mapID)
	if err != nil {
		return fmt.Errorf("failed to load persisted annotations: %w", err)
	}
	for _, row := range rows {
		if _, err := st.store.Set(row.FeatureID, row.Layer, row.Text); err != nil {
			s.logger.Warn("Skipping persisted annotation",
				zap.String("map", mapID),
				zap.String("feature", row.FeatureID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *flatmapService) Manifest(ctx context.Context, mapID string) (*Manifest, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return nil, err
	}
	return st.manifest, nil
}

func (s *flatmapService) Annotations(ctx context.Context, mapID string) ([]models.AnnotationRecord, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return nil, err
	}
	return st.store.All(), nil
}

func (s *flatmapService) Annotation(ctx context.Context, mapID, featureID string) (models.AnnotationRecord, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return models.AnnotationRecord{}, err
	}
	rec, ok := st.store.GetByFeature(featureID)
	if !ok {
		return models.AnnotationRecord{}, apperrors.ErrNotFound
	}
	return rec, nil
}

// SetAnnotation parses and stores annotation text for a feature, then
// persists the raw text. Empty text deletes the annotation.
func (s *flatmapService) SetAnnotation(ctx context.Context, mapID, featureID, layer, text string) (models.AnnotationRecord, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return models.AnnotationRecord{}, err
	}

	if text != "" && !st.manifest.HasLayer(layer) {
		return models.AnnotationRecord{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownLayer, layer)
	}

	rec, err := st.store.Set(featureID, layer, text)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateAnnotationID) {
			metrics.AnnotationParses.WithLabelValues("duplicate_id").Inc()
		}
		return models.AnnotationRecord{}, err
	}

	if rec.Valid() {
		metrics.AnnotationParses.WithLabelValues("ok").Inc()
	} else {
		metrics.AnnotationParses.WithLabelValues("syntax_error").Inc()
		s.logger.Debug("Annotation has syntax error",
			zap.String("map", mapID),
			zap.String("feature", featureID),
			zap.String("text", logging.SanitizeAnnotation(text)),
			zap.String("error", rec.Error))
	}

	if err := s.persist(ctx, mapID, featureID, layer, text); err != nil {
		return models.AnnotationRecord{}, err
	}
	return rec, nil
}

func (s *flatmapService) persist(ctx context.Context, mapID, featureID, layer, text string) error {
	if s.repo == nil {
		return nil
	}
	if text == "" {
		if err := s.repo.Delete(ctx, mapID, featureID); err != nil {
			return fmt.Errorf("failed to delete persisted annotation: %w", err)
		}
		return nil
	}

	// Re-annotating with unchanged text is common from the viewer; skip the
	// redundant write. A read failure falls through to the upsert.
	if existing, err := s.repo.GetByFeature(ctx, mapID, featureID); err == nil &&
		existing != nil && existing.Layer == layer && existing.Text == text {
		return nil
	}
	ann := &repositories.StoredAnnotation{
		MapID:     mapID,
		FeatureID: featureID,
		Layer:     layer,
		Text:      text,
	}
	if err := s.repo.Upsert(ctx, ann); err != nil {
		return fmt.Errorf("failed to persist annotation: %w", err)
	}
	return nil
}

// ResolveStyle answers one feature style query. When the feature names its
// layer, activity comes from the map manifest rather than the caller; a
// feature on an undeclared layer is treated as inactive.
func (s *flatmapService) ResolveStyle(ctx context.Context, mapID string, feature models.Feature, opts paint.Options, state models.FeatureState) (StyleResult, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return StyleResult{}, err
	}

	if feature.Layer != "" {
		opts.LayerActive = st.manifest.LayerActive(feature.Layer)
	}

	// An annotation syntax error on the feature forces error styling.
	if rec, ok := st.store.GetByFeature(feature.ID); ok && !rec.Valid() {
		state.AnnotationError = true
	}

	style := st.engine.ResolveStyle(feature)
	metrics.StyleResolutions.WithLabelValues(mapID).Inc()

	return StyleResult{
		Feature: feature,
		Style:   style,
		Paint:   paint.ForFeature(style, opts, state),
		Border:  paint.BorderColour(state),
	}, nil
}

func (s *flatmapService) Patterns(ctx context.Context, mapID string) (map[string]string, error) {
	st, err := s.ensureLoaded(ctx, mapID)
	if err != nil {
		return nil, err
	}
	return st.engine.Patterns(), nil
}

// countingRegistrar forwards pattern registrations to the configured
// registrar while keeping the registration counter accurate.
func (s *flatmapService) countingRegistrar() styles.PatternRegistrar {
	return registrarFunc(func(name, source string) error {
		metrics.PatternRegistrations.Inc()
		if s.registrar == nil {
			s.logger.Debug("Pattern registered",
				zap.String("pattern", name),
				zap.String("source", source))
			return nil
		}
		return s.registrar.RegisterPattern(name, source)
	})
}

type registrarFunc func(name, source string) error

func (f registrarFunc) RegisterPattern(name, source string) error {
	return f(name, source)
}
