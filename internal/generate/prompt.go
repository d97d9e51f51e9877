package generate

import (
	"fmt"
	"path/filepath"
	"strings"

	"aiunit/internal/assemble"
)

// framework names the test framework implied by a file extension.
func framework(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyw":
		return "pytest"
	case ".go":
		return "go test"
	case ".js", ".jsx", ".ts", ".tsx":
		return "jest"
	case ".rs":
		return "cargo test"
	default:
		return "the project's existing test framework"
	}
}

// SystemPrompt is the instruction sent with every request.
func SystemPrompt(req *assemble.UpdateRequest) string {
	return fmt.Sprintf(`You are an expert test engineer extending an existing unit test suite.

Framework: %s
Guidelines:
- Keep every existing test unless it is broken
- Add tests that execute the uncovered lines listed by the user
- Follow the naming, fixtures and import style already used in the test file
- Mock external dependencies
- Return the COMPLETE test file, not a diff

Return ONLY the test code, no explanations.`, framework(req.SourcePath))
}

// UserPrompt renders the request context.
func UserPrompt(req *assemble.UpdateRequest) string {
	var sb strings.Builder

	if req.Function != "" {
		sb.WriteString(fmt.Sprintf("Update the tests for the function %s from %s:\n\n", req.Function, req.SourcePath))
	} else {
		sb.WriteString(fmt.Sprintf("Source file %s:\n\n", req.SourcePath))
	}
	sb.WriteString("```\n")
	sb.WriteString(numbered(req.SourceText, req.Function == ""))
	sb.WriteString("\n```\n\n")

	if len(req.Missing) > 0 {
		sb.WriteString(fmt.Sprintf("Lines not covered by the current tests: %s\n\n", req.Missing))
	}

	if req.TestText != "" {
		sb.WriteString(fmt.Sprintf("Current test file %s:\n\n```\n", req.TestPath))
		sb.WriteString(req.TestText)
		sb.WriteString("\n```\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("The test file %s does not exist yet. Write it from scratch.\n\n", req.TestPath))
	}

	if req.StyleReference != "" {
		sb.WriteString("Other tests in this project, for style reference:\n\n```\n")
		sb.WriteString(req.StyleReference)
		sb.WriteString("\n```\n\n")
	}

	sb.WriteString(fmt.Sprintf("Use %s. Return the full contents of %s.\n", framework(req.SourcePath), filepath.Base(req.TestPath)))
	return sb.String()
}

// numbered prefixes each line with its 1-based number so the model can
// match the uncovered line list.
func numbered(text string, enabled bool) string {
	text = strings.TrimRight(text, "\n")
	if !enabled {
		return text
	}
	lines := strings.Split(text, "\n")
	width := len(fmt.Sprint(len(lines)))
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(fmt.Sprintf("%*d| %s", width, i+1, line))
	}
	return sb.String()
}
