package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyHandler_AllCheckersPassReturns200(t *testing.T) {
	ok := Checker{Name: "registry", Check: func(ctx context.Context) error { return nil }}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler(ok)(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body readyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ok", body.Components["registry"])
}

func TestReadyHandler_FailingCheckerReturns503(t *testing.T) {
	failing := Checker{Name: "registry", Check: func(ctx context.Context) error {
		return errors.New("connection refused")
	}}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	ReadyHandler(failing)(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body readyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "connection refused", body.Components["registry"])
}

func TestRegistryChecker_PropagatesRegistryError(t *testing.T) {
	reg := newFakeRegistry()
	reg.lastCommitErr = errors.New("no deployments recorded")

	checker := registryChecker(reg)
	assert.Equal(t, "registry", checker.Name)
	assert.EqualError(t, checker.Check(context.Background()), "no deployments recorded")
}

func TestHealthHandler_AlwaysReturns200(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	HealthHandler()(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLivenessHandler_AlwaysReturns200(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	w := httptest.NewRecorder()
	LivenessHandler()(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
