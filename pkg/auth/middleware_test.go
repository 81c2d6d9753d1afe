package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeValidator struct {
	claims *Claims
	err    error
}

func (f *fakeValidator) ValidateToken(tokenString string) (*Claims, error) {
	return f.claims, f.err
}

func okHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		require.True(t, ok, "claims must be set in context")
		require.NotNil(t, claims)
		token, ok := GetToken(r.Context())
		require.True(t, ok)
		require.NotEmpty(t, token)
		w.WriteHeader(http.StatusOK)
	}
}

func TestRequireAnnotatorSuccess(t *testing.T) {
	validator := &fakeValidator{claims: &Claims{Roles: []string{"annotator"}}}
	mw := NewMiddleware(validator, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/api/flatmap/rat/annotations/f1", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	mw.RequireAnnotator(okHandler(t))(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAnnotatorMissingHeader(t *testing.T) {
	mw := NewMiddleware(&fakeValidator{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	rec := httptest.NewRecorder()

	mw.RequireAnnotator(okHandler(t))(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnnotatorInvalidToken(t *testing.T) {
	validator := &fakeValidator{err: errors.New("bad signature")}
	mw := NewMiddleware(validator, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec := httptest.NewRecorder()

	mw.RequireAnnotator(okHandler(t))(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAnnotatorInsufficientRole(t *testing.T) {
	validator := &fakeValidator{claims: &Claims{Roles: []string{"viewer"}}}
	mw := NewMiddleware(validator, zap.NewNop())

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	mw.RequireAnnotator(okHandler(t))(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCanAnnotate(t *testing.T) {
	assert.True(t, (&Claims{Roles: []string{"admin"}}).CanAnnotate())
	assert.True(t, (&Claims{Roles: []string{"viewer", "annotator"}}).CanAnnotate())
	assert.False(t, (&Claims{Roles: []string{"viewer"}}).CanAnnotate())
	assert.False(t, (&Claims{}).CanAnnotate())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer ")
	_, ok = bearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Bearer tok")
	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}
