package services

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/celldl/flatmap-engine/pkg/apperrors"
	"github.com/celldl/flatmap-engine/pkg/config"
	"github.com/celldl/flatmap-engine/pkg/models"
	"github.com/celldl/flatmap-engine/pkg/paint"
	"github.com/celldl/flatmap-engine/pkg/repositories"
)

// fakeAnnotationRepo implements repositories.AnnotationRepository in memory.
type fakeAnnotationRepo struct {
	mu      sync.Mutex
	rows    map[string]*repositories.StoredAnnotation // map_id/feature_id
	upserts int
}

func newFakeRepo() *fakeAnnotationRepo {
	return &fakeAnnotationRepo{rows: make(map[string]*repositories.StoredAnnotation)}
}

func (f *fakeAnnotationRepo) key(mapID, featureID string) string {
	return mapID + "/" + featureID
}

func (f *fakeAnnotationRepo) Upsert(ctx context.Context, ann *repositories.StoredAnnotation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	copied := *ann
	f.rows[f.key(ann.MapID, ann.FeatureID)] = &copied
	return nil
}

func (f *fakeAnnotationRepo) GetByMap(ctx context.Context, mapID string) ([]*repositories.StoredAnnotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repositories.StoredAnnotation
	for _, row := range f.rows {
		if row.MapID == mapID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeAnnotationRepo) GetByFeature(ctx context.Context, mapID, featureID string) (*repositories.StoredAnnotation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[f.key(mapID, featureID)]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (f *fakeAnnotationRepo) Delete(ctx context.Context, mapID, featureID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, f.key(mapID, featureID))
	return nil
}

// writeTestMap lays out a minimal flatmap under root/rat.
func writeTestMap(t *testing.T, root string) {
	t.Helper()
	mapDir := filepath.Join(root, "rat")
	require.NoError(t, os.MkdirAll(mapDir, 0o755))

	manifest := `id: rat
title: Rat flatmap
source: maps/rat
ontology: anatomy.json
stylesheets:
  - styles.css
layers:
  - id: neural
    title: Neural network
    active: true
  - id: vascular
    title: Vasculature
    active: false
`
	require.NoError(t, os.WriteFile(filepath.Join(mapDir, "manifest.yaml"), []byte(manifest), 0o600))

	anatomy := `{
		"UBERON:1": {"label": "organ", "part_of": ["UBERON:2"], "is_a": []},
		"UBERON:2": {"label": "system", "part_of": [], "is_a": []}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(mapDir, "anatomy.json"), []byte(anatomy), 0o600))

	css := `.UBERON_0000002 {color: blue; stroke-width: 2;}
.UBERON_0000001 {color: red;}
#special {color: purple;}
`
	require.NoError(t, os.WriteFile(filepath.Join(mapDir, "styles.css"), []byte(css), 0o600))
}

func newTestService(t *testing.T, repo repositories.AnnotationRepository) FlatmapService {
	t.Helper()
	root := t.TempDir()
	writeTestMap(t, root)
	cfg := config.FlatmapConfig{MapsRoot: root}
	return NewFlatmapService(cfg, repo, nil, zap.NewNop())
}

func TestServiceLoadsManifest(t *testing.T) {
	svc := newTestService(t, nil)

	m, err := svc.Manifest(context.Background(), "rat")
	require.NoError(t, err)
	assert.Equal(t, "rat", m.ID)
	assert.True(t, m.LayerActive("neural"))
	assert.False(t, m.LayerActive("vascular"))
	assert.False(t, m.HasLayer("missing"))
}

func TestServiceUnknownMap(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Manifest(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrMapNotLoaded)
}

func TestServiceSetAndGetAnnotation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	rec, err := svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1 models(UBERON:1) label(organ)")
	require.NoError(t, err)
	assert.Equal(t, "maps/rat/neural/n1", rec.URL)

	got, err := svc.Annotation(ctx, "rat", "feature-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = svc.Annotation(ctx, "rat", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestServiceDuplicateAnnotation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1")
	require.NoError(t, err)

	_, err = svc.SetAnnotation(ctx, "rat", "feature-2", "neural", "#n1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateAnnotationID)
}

func TestServiceRejectsUndeclaredLayer(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SetAnnotation(ctx, "rat", "feature-1", "lymphatic", "#n1")
	assert.ErrorIs(t, err, apperrors.ErrUnknownLayer)

	// Deletion carries no layer check; clearing an annotation always works.
	_, err = svc.SetAnnotation(ctx, "rat", "feature-1", "", "")
	assert.NoError(t, err)
}

func TestServiceSkipsUnchangedPersist(t *testing.T) {
	repo := newFakeRepo()
	root := t.TempDir()
	writeTestMap(t, root)
	svc := NewFlatmapService(config.FlatmapConfig{MapsRoot: root}, repo, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1 label(organ)")
	require.NoError(t, err)
	_, err = svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1 label(organ)")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.upserts, "identical re-annotation writes once")

	_, err = svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1 label(viscus)")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.upserts, "changed text writes again")
}

func TestServicePersistsAnnotations(t *testing.T) {
	repo := newFakeRepo()
	root := t.TempDir()
	writeTestMap(t, root)
	cfg := config.FlatmapConfig{MapsRoot: root}
	ctx := context.Background()

	svc := NewFlatmapService(cfg, repo, nil, zap.NewNop())
	_, err := svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "#n1 label(organ)")
	require.NoError(t, err)

	// A second service instance sees the persisted annotation after load.
	svc2 := NewFlatmapService(cfg, repo, nil, zap.NewNop())
	rec, err := svc2.Annotation(ctx, "rat", "feature-1")
	require.NoError(t, err)
	assert.Equal(t, "organ", rec.Label)

	// Deletion removes the persisted row too.
	_, err = svc.SetAnnotation(ctx, "rat", "feature-1", "neural", "")
	require.NoError(t, err)
	row, err := repo.GetByFeature(ctx, "rat", "feature-1")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestServiceResolveStyle(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	feature := models.Feature{ID: "f1", OntologyClass: "UBERON:1", GeometryType: models.GeometryPolygon}
	result, err := svc.ResolveStyle(ctx, "rat", feature, paint.Options{LayerActive: true}, models.FeatureState{})
	require.NoError(t, err)

	assert.Equal(t, "red", result.Style["color"], "own class beats part-of parent")
	assert.Equal(t, "2", result.Style["stroke-width"], "superclass declarations cascade in")
	assert.Equal(t, "red", result.Paint.Colour)
}

func TestServiceResolveStyleLayerActivityFromManifest(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	// vascular is declared inactive; the manifest overrides the caller's
	// layerActive flag.
	feature := models.Feature{ID: "f1", GeometryType: models.GeometryLineString, Layer: "vascular"}
	result, err := svc.ResolveStyle(ctx, "rat", feature, paint.Options{LayerActive: true}, models.FeatureState{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Paint.Opacity, "features on inactive layers are hidden")

	feature.Layer = "neural"
	result, err = svc.ResolveStyle(ctx, "rat", feature, paint.Options{}, models.FeatureState{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Paint.Opacity, "active layer from the manifest shows the feature")

	feature.Layer = "lymphatic"
	result, err = svc.ResolveStyle(ctx, "rat", feature, paint.Options{LayerActive: true}, models.FeatureState{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Paint.Opacity, "undeclared layers are inactive")
}

func TestServiceResolveStyleAnnotationError(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.SetAnnotation(ctx, "rat", "f1", "neural", "#n1 bogus(x)")
	require.NoError(t, err)

	feature := models.Feature{ID: "f1", GeometryType: models.GeometryPoint}
	result, err := svc.ResolveStyle(ctx, "rat", feature, paint.Options{LayerActive: true}, models.FeatureState{})
	require.NoError(t, err)

	assert.Equal(t, paint.ErrorColour, result.Border, "annotation errors force error styling")
	assert.Equal(t, paint.ErrorColour, result.Paint.Colour)
}

func TestServiceConcurrentEnsureLoaded(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Manifest(ctx, "rat")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestLoadManifestValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")

	require.NoError(t, os.WriteFile(path, []byte("title: no id\n"), 0o600))
	_, err := LoadManifest(path)
	assert.ErrorContains(t, err, "missing map id")

	require.NoError(t, os.WriteFile(path, []byte("id: m1\n"), 0o600))
	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "m1", m.Source, "source defaults to the map id")
}
