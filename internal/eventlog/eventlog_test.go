package eventlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestLog_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	l, err := Open(path)
	require.NoError(t, err)
	l.RunStarted("run-1", "demo")
	l.RunCompleted("run-1", map[string]string{"scalars": "abc", "cells": "def"})
	require.NoError(t, l.Close())

	// Reopening appends rather than truncating.
	l, err = Open(path)
	require.NoError(t, err)
	l.RunFailed("run-2", errors.New("tables: boom"))
	require.NoError(t, l.Close())

	events := readEvents(t, path)
	require.Len(t, events, 3)

	require.Equal(t, "run_started", events[0]["msg"])
	require.Equal(t, "run-1", events[0]["run_id"])
	require.Equal(t, "demo", events[0]["workbook"])

	require.Equal(t, "run_completed", events[1]["msg"])
	require.Equal(t, "def", events[1]["hash_cells"])
	require.Equal(t, "abc", events[1]["hash_scalars"])

	require.Equal(t, "run_failed", events[2]["msg"])
	require.Equal(t, "tables: boom", events[2]["error"])
}
