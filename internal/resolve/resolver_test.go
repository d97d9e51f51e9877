package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		path := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("# test\n"), 0o644))
	}
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := New(Options{})
	require.NoError(t, err)
	return r
}

func TestResolve_EachConventionAnyDepth(t *testing.T) {
	for _, rel := range []string{
		"test_calc.py",
		"unit/calc_test.py",
		"deep/nested/dir/testcalc.py",
	} {
		t.Run(rel, func(t *testing.T) {
			root := t.TempDir()
			touch(t, root, rel)

			res, err := newResolver(t).Resolve("src/calc.py", root)
			require.NoError(t, err)
			assert.True(t, res.Found())
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(rel)), res.Path)
			assert.False(t, res.Ambiguous())
		})
	}
}

func TestResolve_ConventionOrderWins(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a/calc_test.py", "z/test_calc.py", "b/testcalc.py")

	res, err := newResolver(t).Resolve("src/calc.py", root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "z", "test_calc.py"), res.Path)
	assert.Equal(t, "test_{name}{ext}", res.Convention)
	assert.True(t, res.Ambiguous())
	assert.Equal(t, []string{
		filepath.Join(root, "z", "test_calc.py"),
		filepath.Join(root, "a", "calc_test.py"),
		filepath.Join(root, "b", "testcalc.py"),
	}, res.CandidatePaths())
}

func TestResolve_LexicographicWithinConvention(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "unit/test_calc.py", "integration/test_calc.py", "test_calc.py")

	r := newResolver(t)
	first, err := r.Resolve("src/calc.py", root)
	require.NoError(t, err)
	again, err := r.Resolve("src/calc.py", root)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "integration", "test_calc.py"), first.Path)
	assert.Equal(t, first, again)
	assert.Len(t, first.Candidates, 3)
}

func TestResolve_NotFound(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "test_other.py")

	res, err := newResolver(t).Resolve("src/orphan.py", root)
	require.NoError(t, err)
	assert.False(t, res.Found())
	assert.Empty(t, res.Path)
	assert.Equal(t, "src/orphan.py", res.Source)
}

func TestResolve_SkipsConfiguredDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "__pycache__/test_calc.py", ".venv/lib/test_calc.py")

	res, err := newResolver(t).Resolve("calc.py", root)
	require.NoError(t, err)
	assert.False(t, res.Found())

	r, err := New(Options{SkipDirs: []string{}})
	require.NoError(t, err)
	res, err = r.Resolve("calc.py", root)
	require.NoError(t, err)
	assert.True(t, res.Found())
}

func TestResolve_ExtensionKept(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "test_calc.py", "calc_test.go")

	res, err := newResolver(t).Resolve("pkg/calc.go", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "calc_test.go"), res.Path)
}

func TestResolve_MissingRoot(t *testing.T) {
	_, err := newResolver(t).Resolve("calc.py", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestNew_RejectsBadConventions(t *testing.T) {
	_, err := New(Options{Conventions: []string{"tests{ext}"}})
	assert.ErrorIs(t, err, ErrInvalidConvention)

	_, err = New(Options{Conventions: []string{"sub/test_{name}{ext}"}})
	assert.Error(t, err)
}

func TestResolve_CustomConventions(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "spec/calc.spec.py", "test_calc.py")

	r, err := New(Options{Conventions: []string{"{name}.spec{ext}"}})
	require.NoError(t, err)
	res, err := r.Resolve("calc.py", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "spec", "calc.spec.py"), res.Path)
	assert.False(t, res.Ambiguous())
}

func TestPropose(t *testing.T) {
	r := newResolver(t)
	assert.Equal(t, filepath.Join("tests", "test_orphan.py"), r.Propose("src/orphan.py", "tests"))
}
