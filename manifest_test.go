package yoloprep

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEntry = `{
  "name": "b1c66a42-6f7d68ca.jpg",
  "attributes": {"weather": "overcast", "scene": "city street", "timeofday": "daytime"},
  "timestamp": 10000,
  "labels": [
    {
      "category": "car",
      "attributes": {"occluded": false, "truncated": false, "trafficLightColor": "none"},
      "manualShape": true,
      "manualAttributes": true,
      "box2d": {"x1": 100, "y1": 100, "x2": 200, "y2": 300},
      "id": 0
    },
    {
      "category": "lane",
      "attributes": {"laneDirection": "parallel"},
      "poly2d": [{"vertices": [[503.67, 373.14], [357.24, 517.52]], "types": "LL", "closed": false}],
      "id": 1
    }
  ]
}`

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	path := writeManifest(t, t.TempDir(), "["+sampleEntry+"]")

	entries, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "b1c66a42-6f7d68ca.jpg", e.Name)
	require.Len(t, e.Labels, 2)
	assert.Equal(t, "car", e.Labels[0].Category)
	assert.Equal(t, &Box2D{X1: 100, Y1: 100, X2: 200, Y2: 300}, e.Labels[0].Box2D)
	assert.Equal(t, "lane", e.Labels[1].Category)
	assert.Nil(t, e.Labels[1].Box2D)
}

func TestLoadManifest_SkipsBadEntries(t *testing.T) {
	t.Parallel()
	path := writeManifest(t, t.TempDir(), `[
		{"name": "a.jpg", "labels": []},
		"not an entry",
		{"labels": [{"category": "car"}]},
		{"name": "b.jpg", "labels": 5},
		null,
		{"name": "c.jpg"}
	]`)

	entries, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.jpg", entries[0].Name)
	assert.Equal(t, "c.jpg", entries[1].Name)
	assert.Empty(t, entries[1].Labels)
}

func TestLoadManifest_Fatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"object", `{"name": "a.jpg", "labels": []}`},
		{"truncated", `[{"name": "a.jpg"`},
		{"null", `null`},
		{"empty file", ``},
		{"string", `"a.jpg"`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeManifest(t, t.TempDir(), tt.content)
			_, err := LoadManifest(path)
			require.Error(t, err)

			var manifestErr *ManifestError
			require.True(t, errors.As(err, &manifestErr))
			assert.Equal(t, path, manifestErr.Path)
		})
	}
}

func TestLoadManifest_Unreadable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := LoadManifest(path)
	var manifestErr *ManifestError
	require.True(t, errors.As(err, &manifestErr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadManifest_EmptyArray(t *testing.T) {
	t.Parallel()
	path := writeManifest(t, t.TempDir(), `[]`)

	entries, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIntermediate_PreservesUnknownFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var entry LabelEntry
	require.NoError(t, json.Unmarshal([]byte(sampleEntry), &entry))

	path, err := WriteIntermediate(dir, entry)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b1c66a42-6f7d68ca.json"), path)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, sampleEntry, string(written))

	read, err := ReadIntermediate(path)
	require.NoError(t, err)
	assert.Equal(t, entry.Name, read.Name)
	assert.Len(t, read.Labels, 2)
}

func TestIntermediate_PrettyRewrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")

	require.NoError(t, rewriteIntermediate(path, LabelEntry{Name: "a.jpg"}))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"labels\": [],\n  \"name\": \"a.jpg\"\n}", string(written))
}

func TestReadIntermediate_ParseError(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := ReadIntermediate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse intermediate record")
}

func TestBox_NonStringCategory(t *testing.T) {
	t.Parallel()
	var b Box
	require.NoError(t, json.Unmarshal([]byte(`{"category": 7, "box2d": {"x1": 1, "y1": 2, "x2": 3, "y2": 4}}`), &b))
	assert.Empty(t, b.Category)

	enc, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category": 7, "box2d": {"x1": 1, "y1": 2, "x2": 3, "y2": 4}}`, string(enc))
}

func TestBox_InvalidBox2D(t *testing.T) {
	t.Parallel()
	var b Box
	require.NoError(t, json.Unmarshal([]byte(`{"category": "car", "box2d": {"x1": "bad", "y1": 2, "x2": 3, "y2": 4}}`), &b))
	assert.Equal(t, "car", b.Category)
	assert.Nil(t, b.Box2D)

	enc, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category": "car", "box2d": {"x1": "bad", "y1": 2, "x2": 3, "y2": 4}}`, string(enc))
}

func TestIntermediateFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.json"), 0755))

	files, err := intermediateFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json")}, files)
}
