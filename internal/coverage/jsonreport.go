package coverage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// jsonFileEntry is the per-file object of a `coverage json` report.
type jsonFileEntry struct {
	ExecutedLines []int `json:"executed_lines"`
	MissingLines  []int `json:"missing_lines"`
}

// readJSONReport decodes a coverage.py JSON report. The "files" object is
// walked token by token so that document order survives.
func readJSONReport(path string) (*GapReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	report := NewGapReport()
	sawFiles := false
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if key != "files" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("invalid coverage json near %q: %w", key, err)
			}
			continue
		}
		sawFiles = true
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		for dec.More() {
			filePath, err := readKey(dec)
			if err != nil {
				return nil, err
			}
			var entry jsonFileEntry
			if err := dec.Decode(&entry); err != nil {
				return nil, fmt.Errorf("invalid coverage json for %s: %w", filePath, err)
			}
			missing := NewLineSet(entry.MissingLines...)
			executed := NewLineSet(entry.ExecutedLines...)
			report.Add(FileGap{
				Path:       filePath,
				Missing:    missing,
				Statements: missing.Len() + executed.Len(),
				Executed:   executed.Len(),
			})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
	}
	if !sawFiles {
		return nil, fmt.Errorf("%w: json without a files object", ErrUnknownFormat)
	}
	return report, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("invalid coverage json: unexpected end of input")
		}
		return fmt.Errorf("invalid coverage json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("invalid coverage json: expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("invalid coverage json: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("invalid coverage json: expected object key, got %v", tok)
	}
	return key, nil
}
