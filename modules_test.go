package minipy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Write name -> source pairs below dir, creating parent directories.
func writeModules(t *testing.T, dir string, modules map[string]string) {
	t.Helper()
	for name, source := range modules {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	}
}

func runMain(t *testing.T, dir string) (string, error) {
	t.Helper()
	ctx, stdout := newTestContext()
	_, err := ctx.RunFile(filepath.Join(dir, "main.minipy"))
	return stdout.String(), err
}

func TestImportModule(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":   "import helper\nprint(helper.double(21), helper.__name__)\n",
		"helper.minipy": "def double(x):\n    return x * 2\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "42 helper\n", output)
}

func TestImportRunsModuleOnce(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":    "import counted\nimport counted as again\nprint(counted is again)\n",
		"counted.minipy": "print(\"loading\")\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "loading\nTrue\n", output)
}

func TestImportDottedPath(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":      "import pkg.inner\nimport pkg.other\nprint(pkg.inner.value, pkg.other.value)\n",
		"pkg/inner.minipy": "value = 1\n",
		"pkg/other.minipy": "value = 2\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "1 2\n", output)
}

func TestImportAlias(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":      "import pkg.inner as inner\nprint(inner.value)\n",
		"pkg/inner.minipy": "value = 3\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "3\n", output)
}

func TestFromImport(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":   "from shapes import area, unit\nfrom shapes import *\nprint(area(2), unit, side)\n",
		"shapes.minipy": "side = 4\n_hidden = 0\nunit = \"cm\"\ndef area(x):\n    return x * x\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "4 cm 4\n", output)
}

func TestFromImportSkipsPrivateNames(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":   "from shapes import *\nprint(_hidden)\n",
		"shapes.minipy": "_hidden = 0\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	assert.Equal(t, "NameError", typeName(raised.Value))
}

func TestFromImportMissingName(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":   "from shapes import circle\n",
		"shapes.minipy": "side = 4\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	assert.Equal(t, "ImportError: cannot import name 'circle' from 'shapes'", raised.Error())
}

func TestMissingModule(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy": "import nowhere\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	assert.Equal(t, "ImportError: No module named 'nowhere'", raised.Error())
	require.Len(t, raised.Trace, 1)
	assert.Equal(t, 1, raised.Trace[0].Location.Line)
}

func TestCircularImportBindsAfterCompletion(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy": "import a\nprint(a.get(), a.b.read())\n",
		"a.minipy":    "import b\nx = 1\ndef get():\n    return b.y\n",
		"b.minipy":    "import a\ny = 2\ndef read():\n    return a.x\n",
	})
	output, err := runMain(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "2 1\n", output)
}

func TestCircularImportForbidsEarlyUse(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy": "import a\n",
		"a.minipy":    "import b\nx = 1\n",
		"b.minipy":    "import a\nprint(a.x)\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	assert.Equal(t, "ImportError", typeName(raised.Value))
	assert.Contains(t, raised.Error(), "cannot use name 'a' before its circular import has completed")
}

func TestCircularStarImport(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy": "import a\n",
		"a.minipy":    "import b\n",
		"b.minipy":    "from a import *\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	assert.Equal(t, "ImportError", typeName(raised.Value))
}

func TestModuleSearchPath(t *testing.T) {
	root := t.TempDir()
	main := filepath.Join(root, "main")
	library := filepath.Join(root, "library")
	configured := filepath.Join(root, "configured")
	writeModules(t, root, map[string]string{
		"main/main.minipy":         "import first\nimport second\nprint(first.where, second.where)\n",
		"library/first.minipy":     "where = \"env\"\n",
		"configured/first.minipy":  "where = \"configured\"\n",
		"configured/second.minipy": "where = \"configured\"\n",
	})
	t.Setenv(SearchPathVariable, library)

	ctx, stdout := newTestContext()
	ctx.SearchPath = []string{configured}
	assert.Equal(t, []string{main, library, configured}, ctx.ModuleSearchPath(main))

	_, err := ctx.RunFile(filepath.Join(main, "main.minipy"))
	require.NoError(t, err)
	assert.Equal(t, "env configured\n", stdout.String())
}

func TestEnvironmentSearchPathPriority(t *testing.T) {
	t.Setenv(SearchPathVariable, "/low:/high")
	assert.Equal(t, []string{"/high", "/low"}, environmentSearchPath())
}

func TestImportFromContext(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"tools.minipy": "answer = 42\n",
	})
	ctx, _ := newTestContext()
	ctx.SearchPath = []string{dir}
	namespace, err := ctx.Import("tools")
	require.NoError(t, err)
	answer, ok := namespace.Get("answer")
	require.True(t, ok)
	assert.Equal(t, int64(42), answer.Primitive)
}

func TestModuleErrorTrace(t *testing.T) {
	dir := t.TempDir()
	writeModules(t, dir, map[string]string{
		"main.minipy":   "import broken\n",
		"broken.minipy": "x = 1\nraise ValueError(\"boom\")\n",
	})
	_, err := runMain(t, dir)
	raised := raisedError(t, err)
	require.Len(t, raised.Trace, 2)
	assert.Equal(t, filepath.Join(dir, "broken.minipy"), raised.Trace[0].Location.File)
	assert.Equal(t, 2, raised.Trace[0].Location.Line)
	assert.Equal(t, filepath.Join(dir, "main.minipy"), raised.Trace[1].Location.File)
}
