package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calcstack/calcbook/internal/state"
)

func setupServer(t *testing.T) (*Server, *state.SQLiteStore, string) {
	t.Helper()
	store, err := state.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	return New(store, dir, nil), store, dir
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPI_Health(t *testing.T) {
	s, _, _ := setupServer(t)
	rec := get(t, s.Routes(), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_Runs(t *testing.T) {
	s, store, _ := setupServer(t)
	run, err := store.CreateRun("demo", `{"growth":0.1}`)
	require.NoError(t, err)
	require.NoError(t, store.RecordArtifact(run.ID, "scalars", "abc123"))

	h := s.Routes()

	rec := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Runs []struct {
			ID       string `json:"id"`
			Workbook string `json:"workbook"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Runs, 1)
	require.Equal(t, run.ID, list.Runs[0].ID)
	require.Equal(t, "demo", list.Runs[0].Workbook)

	rec = get(t, h, "/api/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Status    string            `json:"status"`
		Params    map[string]any    `json:"params"`
		Artifacts map[string]string `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, "running", detail.Status)
	require.Equal(t, 0.1, detail.Params["growth"])
	require.Equal(t, "abc123", detail.Artifacts["scalars"])

	rec = get(t, h, "/api/runs/unknown-id")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/runs?limit=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Artifacts(t *testing.T) {
	s, store, dir := setupServer(t)
	run, err := store.CreateRun("demo", "{}")
	require.NoError(t, err)

	runDir := filepath.Join(dir, run.ID)
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "scalars.json"), []byte(`{"profit":35}`), 0o644))

	h := s.Routes()

	rec := get(t, h, "/api/runs/"+run.ID+"/artifacts/scalars")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"profit":35}`, rec.Body.String())

	rec = get(t, h, "/api/runs/"+run.ID+"/artifacts/cells")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/runs/"+run.ID+"/artifacts/bogus")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
