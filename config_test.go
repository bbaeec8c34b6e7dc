package minipy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `[project]
name = "demo"

[source]
search-path = ["lib", "/opt/minipy"]

[log]
verbosity = 2
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", manifest.Project.Name)
	assert.Equal(t, 2, manifest.Log.Verbosity)
	assert.Equal(t, dir, manifest.Dir)
	assert.Equal(t, []string{filepath.Join(dir, "lib"), "/opt/minipy"}, manifest.SearchDirectories())
}

func TestFindManifestWalksUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(testManifest), 0o644))
	nested := filepath.Join(dir, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	manifest, err := FindManifest(nested)
	require.NoError(t, err)
	require.NotNil(t, manifest)
	assert.Equal(t, dir, manifest.Dir)
}

func TestFindManifestNone(t *testing.T) {
	// A fresh temp directory has no manifest unless one sits above it.
	dir := t.TempDir()
	manifest, err := FindManifest(dir)
	require.NoError(t, err)
	if manifest != nil {
		assert.NotEqual(t, dir, manifest.Dir)
	}
}

func TestManifestApply(t *testing.T) {
	manifest := &Manifest{Dir: "/project"}
	manifest.Source.SearchPath = []string{"lib", "vendor/minipy"}

	ctx, _ := newTestContext()
	ctx.SearchPath = []string{"/first"}
	manifest.Apply(ctx)
	assert.Equal(t, []string{"/first", "/project/lib", "/project/vendor/minipy"}, ctx.SearchPath)
}

func TestManifestParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName)
	require.NoError(t, os.WriteFile(path, []byte("[project\nname = "), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error in")
}

func TestManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), ManifestName))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read")
}
