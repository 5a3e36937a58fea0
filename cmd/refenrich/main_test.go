package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fergidotcom/reference-refinement-sub003/internal/config"
	"github.com/fergidotcom/reference-refinement-sub003/internal/refstore"
)

func newStore(t *testing.T, lines string) *refstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refs.txt")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	store, err := refstore.Load(path)
	require.NoError(t, err)
	return store
}

func TestSelectReferences_AllIncompleteSkipsFullyAssignedReferences(t *testing.T) {
	store := newStore(t, "[1] A (2000). One. Pub.\n"+
		"[2] B (2001). Two. Pub. PRIMARY_URL[https://x] SECONDARY_URL[https://y]\n")
	cfg := &config.Config{SelectionMode: config.SelectionAllIncomplete}

	refs := selectReferences(store, cfg)
	require.Len(t, refs, 1)
	require.Equal(t, 1, refs[0].ID)
}

func TestSelectReferences_RangeModeHonorsIDBounds(t *testing.T) {
	store := newStore(t, "[1] A (2000). One. Pub.\n[2] B (2001). Two. Pub.\n[3] C (2002). Three. Pub.\n")
	cfg := &config.Config{SelectionMode: config.SelectionRange, IDStart: 2, IDEnd: 3}

	refs := selectReferences(store, cfg)
	require.Len(t, refs, 2)
	require.Equal(t, 2, refs[0].ID)
	require.Equal(t, 3, refs[1].ID)
}

func TestHashConfig_DiffersWhenThresholdChanges(t *testing.T) {
	a := &config.Config{InputFile: "x", PrimaryThreshold: 75}
	b := &config.Config{InputFile: "x", PrimaryThreshold: 80}
	require.NotEqual(t, hashConfig(a), hashConfig(b))
}

func TestHashConfig_StableForIdenticalConfig(t *testing.T) {
	a := &config.Config{InputFile: "x", OutputFile: "y", PrimaryThreshold: 75}
	b := &config.Config{InputFile: "x", OutputFile: "y", PrimaryThreshold: 75}
	require.Equal(t, hashConfig(a), hashConfig(b))
}
