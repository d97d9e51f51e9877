package orchestrator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// writeFileAtomic replaces path with content through a temp file in the
// same directory. An existing file keeps its mode; new files get 0644.
// A symlinked path is written through to its target so the link survives.
func writeFileAtomic(path, content string, createDirs bool) error {
	if target, err := filepath.EvalSymlinks(path); err == nil {
		path = target
	}
	dir := filepath.Dir(path)
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if createDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

const diffContext = 3

// lineDiff renders a unified-style line diff of a test file rewrite.
func lineDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", path, path)
	for i, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		chunk := strings.Split(text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			for _, l := range chunk {
				sb.WriteString("+" + l + "\n")
			}
		case diffmatchpatch.DiffDelete:
			for _, l := range chunk {
				sb.WriteString("-" + l + "\n")
			}
		case diffmatchpatch.DiffEqual:
			head, tail := diffContext, diffContext
			if i == 0 {
				head = 0
			}
			if i == len(diffs)-1 {
				tail = 0
			}
			if len(chunk) <= head+tail {
				for _, l := range chunk {
					sb.WriteString(" " + l + "\n")
				}
				continue
			}
			for _, l := range chunk[:head] {
				sb.WriteString(" " + l + "\n")
			}
			fmt.Fprintf(&sb, "@@ %d unchanged line(s) @@\n", len(chunk)-head-tail)
			for _, l := range chunk[len(chunk)-tail:] {
				sb.WriteString(" " + l + "\n")
			}
		}
	}
	return sb.String()
}
