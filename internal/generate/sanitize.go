package generate

import (
	"strings"
)

// ExtractCode unwraps a response fenced in a markdown code block and
// trims surrounding whitespace. A language tag on the opening fence is
// dropped. The result always ends with a single newline unless empty.
func ExtractCode(response string) string {
	content := response
	if idx := strings.Index(response, "```"); idx != -1 {
		endIdx := strings.LastIndex(response, "```")
		if endIdx > idx {
			content = response[idx+3 : endIdx]
			if newlineIdx := strings.Index(content, "\n"); newlineIdx != -1 {
				firstLine := strings.TrimSpace(content[:newlineIdx])
				if !strings.Contains(firstLine, " ") && len(firstLine) < 20 {
					content = content[newlineIdx+1:]
				}
			}
		}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	return content + "\n"
}
