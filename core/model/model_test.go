package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

type savedThing struct {
	State  StateManager
	Name   string
	Values []float64
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "thing.gob")

	in := savedThing{Name: "scaler", Values: []float64{1.5, -2, 3}}
	in.State.SetFitted()
	in.State.SetDimensions(3, 10)
	require.NoError(t, SaveModel(&in, path))

	var out savedThing
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Values, out.Values)
	assert.True(t, out.State.IsFitted())
	nf, ns := out.State.GetDimensions()
	assert.Equal(t, 3, nf)
	assert.Equal(t, 10, ns)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSaveModelOverwritesWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thing.gob")
	require.NoError(t, SaveModel(&savedThing{Name: "first", Values: make([]float64, 100)}, path))
	require.NoError(t, SaveModel(&savedThing{Name: "second"}, path))

	var out savedThing
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, "second", out.Name)
	assert.Empty(t, out.Values)
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()

	var out savedThing
	err := LoadModel(&out, filepath.Join(dir, "absent.gob"))
	var perr *perrors.PersistenceError
	require.True(t, perrors.As(err, &perr))
	assert.Equal(t, "open", perr.Op)

	corrupt := filepath.Join(dir, "corrupt.gob")
	require.NoError(t, os.WriteFile(corrupt, []byte("not gob"), 0o644))
	err = LoadModel(&out, corrupt)
	require.True(t, perrors.As(err, &perr))
	assert.Equal(t, "decode", perr.Op)
}

func TestSaveModelUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	err := SaveModel(&savedThing{}, filepath.Join(blocker, "model.gob"))
	assert.True(t, perrors.IsTransient(err))
}

func TestStateManager(t *testing.T) {
	s := &StateManager{}
	err := s.RequireFitted("StandardScaler", "Transform")
	var nf *perrors.NotFittedError
	require.True(t, perrors.As(err, &nf))
	assert.Equal(t, "Transform", nf.Method)

	s.SetFitted()
	s.SetDimensions(4, 100)
	assert.NoError(t, s.RequireFitted("StandardScaler", "Transform"))
	assert.NoError(t, s.RequireFeatures("Transform", 4))
	assert.Error(t, s.RequireFeatures("Transform", 5))

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestArtifactMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.gob.metrics.json")
	am := &ArtifactMetadata{
		RunID:           "run-1",
		ModelType:       "LGBMClassifier",
		Version:         "1.0.0",
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Features:        []string{"Age", "Gender_Male"},
		Hyperparameters: map[string]interface{}{"reg_lambda": 5.0},
		Metrics:         map[string]float64{"accuracy": 0.9},
		IsFitted:        true,
	}
	require.NoError(t, am.WriteFile(path))

	back, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, am.RunID, back.RunID)
	assert.Equal(t, am.Features, back.Features)
	assert.Equal(t, 0.9, back.Metrics["accuracy"])
	assert.True(t, am.CreatedAt.Equal(back.CreatedAt))

	invalid := &ArtifactMetadata{ModelType: "LGBMClassifier", Version: "1", IsFitted: true}
	assert.Error(t, invalid.Validate())
}
