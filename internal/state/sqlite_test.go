package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("demo", `{"growth":0.1}`)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	require.Equal(t, RunStatusRunning, run.Status)

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, "demo", got.Workbook)
	require.Equal(t, `{"growth":0.1}`, got.Params)
	require.Nil(t, got.CompletedAt)

	require.NoError(t, s.CompleteRun(run.ID, RunStatusCompleted, ""))
	got, err = s.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Empty(t, got.Error)
}

func TestStore_FailedRun(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun("demo", "{}")
	require.NoError(t, err)
	require.NoError(t, s.CompleteRun(run.ID, RunStatusFailed, "tables: boom"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, got.Status)
	require.Equal(t, "tables: boom", got.Error)
}

func TestStore_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("nope")
	require.ErrorContains(t, err, "run not found")
	require.ErrorContains(t, s.CompleteRun("nope", RunStatusCompleted, ""), "run not found")
}

func TestStore_ListRuns(t *testing.T) {
	s := openTestStore(t)
	for range 3 {
		_, err := s.CreateRun("demo", "{}")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	runs, err = s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestStore_Artifacts(t *testing.T) {
	s := openTestStore(t)
	run, err := s.CreateRun("demo", "{}")
	require.NoError(t, err)

	require.NoError(t, s.RecordArtifact(run.ID, "scalars", "abc"))
	require.NoError(t, s.RecordArtifact(run.ID, "cells", "def"))

	recs, err := s.GetArtifacts(run.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "cells", recs[0].Kind)
	require.Equal(t, "def", recs[0].Hash)
	require.Equal(t, "scalars", recs[1].Kind)
}

func TestStore_Migrated(t *testing.T) {
	s := openTestStore(t)
	v, err := s.MigrationVersion()
	require.NoError(t, err)
	require.GreaterOrEqual(t, v, int64(1))
}
