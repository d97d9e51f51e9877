package coverage

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Format identifies a coverage artifact encoding.
type Format string

const (
	FormatSQLite    Format = "coverage.py-sqlite" // coverage.py data file (.coverage)
	FormatJSON      Format = "coverage.py-json"   // output of `coverage json`
	FormatGoProfile Format = "go-coverprofile"    // output of `go test -coverprofile`
)

var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat sniffs the artifact header.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	head = head[:n]

	if bytes.HasPrefix(head, sqliteMagic) {
		return FormatSQLite, nil
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n\ufeff")
	switch {
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON, nil
	case bytes.HasPrefix(trimmed, []byte("mode:")):
		return FormatGoProfile, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}
