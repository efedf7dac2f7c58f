package llm

import "strings"

// cleanJSONContent strips markdown code fences and conversational chatter
// that models sometimes wrap around JSON output.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	} else if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Trim a leading line of chatter before the JSON object or array.
	if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
		if idx := strings.Index(content, "\n{"); idx >= 0 && !strings.ContainsAny(content[:idx], "{[") {
			content = content[idx+1:]
		} else if idx := strings.Index(content, "\n["); idx >= 0 && !strings.ContainsAny(content[:idx], "{[") {
			content = content[idx+1:]
		}
	}

	return strings.TrimSpace(content)
}
