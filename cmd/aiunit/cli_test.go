package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"aiunit/internal/config"
	"aiunit/internal/coverage"
	"aiunit/internal/generate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const generatedTest = "import calc\n\ndef test_sub():\n    assert calc.sub(3, 1) == 2\n"

// isolate clears credentials and model overrides from the environment.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"AIUNIT_PROVIDER", "AIUNIT_MODEL", "AIUNIT_LOG_LEVEL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "GEMINI_API_KEY", "GEMINI_BASE_URL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("NO_COLOR", "1")
}

// fakeOpenAI answers every chat completion with a fenced test file.
func fakeOpenAI(t *testing.T, status int) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "```python\n" + generatedTest + "```"},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)
	return &calls
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newWorkspace lays out the calc/orphan project with a JSON coverage
// report; missing maps source path to its missing lines.
func newWorkspace(t *testing.T, missing map[string][]int) string {
	t.Helper()
	ws := t.TempDir()
	writeFile(t, ws, "src/calc.py", "def add(a, b):\n    return a + b\n\n\ndef sub(a, b):\n    return a - b\n")
	writeFile(t, ws, "src/orphan.py", "X = 1\n")
	writeFile(t, ws, "tests/test_calc.py", "import calc\n")

	files := make([]string, 0, len(missing))
	for _, path := range []string{"src/calc.py", "src/orphan.py"} {
		lines, ok := missing[path]
		if !ok {
			continue
		}
		data, err := json.Marshal(lines)
		require.NoError(t, err)
		files = append(files, fmt.Sprintf(`%q: {"executed_lines": [1], "missing_lines": %s}`, path, data))
	}
	writeFile(t, ws, "coverage.json", `{"files": {`+strings.Join(files, ", ")+`}}`)
	return ws
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func syncArgs(ws string, extra ...string) []string {
	args := []string{"-w", ws, "sync", "--folders", "src", "--tests-folder", "tests", "--coverage-file", "coverage.json"}
	return append(args, extra...)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, exitOK},
		{"config", config.ErrNoTestsFolder, exitConfig},
		{"coverage", &coverage.UnavailableError{Path: ".coverage", Err: os.ErrNotExist}, exitCoverage},
		{"wrapped coverage", fmt.Errorf("run: %w", coverage.ErrCoverageUnavailable), exitCoverage},
		{"entry failed", &exitError{code: exitEntryFailed, err: errors.New("1 file(s) failed")}, exitEntryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestSyncCmd_UpdatesCalcAndSkipsOrphan(t *testing.T) {
	isolate(t)
	calls := fakeOpenAI(t, http.StatusOK)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5, 6}, "src/orphan.py": {1}})

	out, err := execute(t, syncArgs(ws)...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(ws, "tests", "test_calc.py"))
	require.NoError(t, err)
	assert.Equal(t, generatedTest, string(data))
	assert.EqualValues(t, 1, calls.Load())
	assert.NoFileExists(t, filepath.Join(ws, "tests", "test_orphan.py"))

	assert.Contains(t, out, "1 processed, 1 skipped, 0 failed")
	assert.Contains(t, out, "no_test_file")
}

func TestSyncCmd_DryRunLeavesFiles(t *testing.T) {
	isolate(t)
	fakeOpenAI(t, http.StatusOK)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5, 6}})

	out, err := execute(t, syncArgs(ws, "--dry-run")...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(ws, "tests", "test_calc.py"))
	require.NoError(t, err)
	assert.Equal(t, "import calc\n", string(data))
	assert.Contains(t, out, "+def test_sub():")
	assert.Contains(t, out, "dry run")
}

func TestSyncCmd_NothingToDoNeedsNoKey(t *testing.T) {
	isolate(t)
	ws := newWorkspace(t, map[string][]int{})

	out, err := execute(t, syncArgs(ws)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to do")
}

func TestSyncCmd_MissingKeyIsFatalOnceNeeded(t *testing.T) {
	isolate(t)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5}})

	_, err := execute(t, syncArgs(ws)...)
	require.ErrorIs(t, err, generate.ErrMissingAPIKey)
	assert.Equal(t, exitConfig, exitCode(err))
}

func TestSyncCmd_FailOnError(t *testing.T) {
	isolate(t)
	fakeOpenAI(t, http.StatusInternalServerError)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5}})

	out, err := execute(t, syncArgs(ws)...)
	require.NoError(t, err, "partial failure is not an error by default")
	assert.Contains(t, out, "0 processed, 0 skipped, 1 failed")

	_, err = execute(t, syncArgs(ws, "--fail-on-error")...)
	require.Error(t, err)
	assert.Equal(t, exitEntryFailed, exitCode(err))
}

func TestSyncCmd_CoverageUnavailable(t *testing.T) {
	isolate(t)
	ws := t.TempDir()
	_, err := execute(t, "-w", ws, "sync", "--folders", "src", "--tests-folder", "tests")
	require.Error(t, err)
	assert.Equal(t, exitCoverage, exitCode(err))
}

func TestSyncCmd_ConfigErrors(t *testing.T) {
	isolate(t)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5}})

	_, err := execute(t, "-w", ws, "sync", "--tests-folder", "tests", "--coverage-file", "coverage.json")
	assert.ErrorIs(t, err, config.ErrNoSourceFolders)
	assert.Equal(t, exitConfig, exitCode(err))

	_, err = execute(t, "-w", ws, "sync", "--folders", "src", "--coverage-file", "coverage.json")
	assert.ErrorIs(t, err, config.ErrNoTestsFolder)

	writeFile(t, ws, config.DefaultFile, "llm:\n  provider: zai\n")
	_, err = execute(t, syncArgs(ws)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Provider")
}

func TestSyncCmd_AutoDiscovery(t *testing.T) {
	isolate(t)
	calls := fakeOpenAI(t, http.StatusOK)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5}})
	writeFile(t, ws, config.PyprojectFile, `
[tool.pytest.ini_options]
testpaths = ["tests"]

[tool.coverage.run]
source = ["src"]
data_file = "coverage.json"
`)

	_, err := execute(t, "-w", ws, "sync", "--auto")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestSyncCmd_WritesMetrics(t *testing.T) {
	isolate(t)
	fakeOpenAI(t, http.StatusOK)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {5}})
	writeFile(t, ws, config.DefaultFile, "sync:\n  metrics_file: out/aiunit.prom\n")
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "out"), 0o755))

	_, err := execute(t, syncArgs(ws)...)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(ws, "out", "aiunit.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `aiunit_entries_total{status="processed"} 1`)
}

func TestFuncCmd(t *testing.T) {
	isolate(t)
	calls := fakeOpenAI(t, http.StatusOK)
	ws := newWorkspace(t, nil)

	out, err := execute(t, "-w", ws, "func", "src/calc.py", "sub", "--tests-folder", "tests")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
	assert.Contains(t, out, "1 processed")

	out, err = execute(t, "-w", ws, "func", "src/calc.py", "mul", "--tests-folder", "tests")
	require.NoError(t, err)
	assert.Contains(t, out, "function_unavailable")
	assert.EqualValues(t, 1, calls.Load(), "no call for a missing function")
}

func TestGapsCmd(t *testing.T) {
	isolate(t)
	ws := newWorkspace(t, map[string][]int{"src/calc.py": {2, 5, 6}, "src/orphan.py": {1}})

	out, err := execute(t, "-w", ws, "gaps", "--coverage-file", "coverage.json")
	require.NoError(t, err)
	assert.Contains(t, out, "src/calc.py")
	assert.Contains(t, out, "2, 5-6")
	assert.Contains(t, out, "src/orphan.py")

	out, err = execute(t, "-w", ws, "gaps", "--coverage-file", "coverage.json", "--folders", "src/calc.py")
	require.NoError(t, err)
	assert.NotContains(t, out, "orphan")
}

func TestGapsCmd_MissingArtifact(t *testing.T) {
	isolate(t)
	_, err := execute(t, "-w", t.TempDir(), "gaps")
	require.ErrorIs(t, err, coverage.ErrCoverageUnavailable)
	assert.Equal(t, exitCoverage, exitCode(err))
}

func TestInitCmd(t *testing.T) {
	isolate(t)
	ws := t.TempDir()
	writeFile(t, ws, config.PyprojectFile, "[tool.ai-unit-test]\nfolders = [\"lib\"]\ntests-folder = \"spec\"\n")

	out, err := execute(t, "-w", ws, "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.DefaultFile)

	loaded, err := config.Load(filepath.Join(ws, config.DefaultFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"lib"}, loaded.Paths.Folders)
	assert.Equal(t, "spec", loaded.Paths.TestsFolder)

	_, err = execute(t, "-w", ws, "init")
	assert.Error(t, err, "existing config is kept without --force")

	_, err = execute(t, "-w", ws, "init", "--force")
	assert.NoError(t, err)
}

func TestWorkspaceRoot(t *testing.T) {
	defer func() { workspace = "" }()

	workspace = filepath.Join(t.TempDir(), "missing")
	_, err := workspaceRoot()
	assert.Error(t, err)

	dir := t.TempDir()
	workspace = dir
	got, err := workspaceRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}
