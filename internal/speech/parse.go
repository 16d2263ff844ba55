package speech

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// TitlePayload is the object the title backend is asked to return.
type TitlePayload struct {
	Title string `json:"title" jsonschema:"description=Speech title"`
}

// SpeechPayload is the object the speech backend is asked to return.
type SpeechPayload struct {
	Speech string `json:"speech" jsonschema:"description=Full speech text of roughly 350 words"`
}

// extractField decodes reply as a JSON object and returns the trimmed string stored
// under key. Code fences around the object are tolerated, as is a fenced object
// after leading prose; anything else that is not a JSON object with a non-blank
// string at key is an error.
func extractField(reply, key string) (string, error) {
	trimmed := stripCodeFence(strings.TrimSpace(reply))
	if trimmed == "" {
		return "", eris.New("reply is empty")
	}

	var object map[string]any
	if err := json.Unmarshal([]byte(trimmed), &object); err != nil {
		block, ok := firstFencedBlock(reply)
		if !ok || json.Unmarshal([]byte(block), &object) != nil {
			return "", eris.Wrap(err, "decoding reply as json object")
		}
	}

	raw, ok := object[key]
	if !ok {
		return "", eris.Errorf("reply has no %q key", key)
	}

	value, ok := raw.(string)
	if !ok {
		return "", eris.Errorf("reply key %q is %T, not a string", key, raw)
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return "", eris.Errorf("reply key %q is blank", key)
	}

	return value, nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}

	body := content[3:]
	newline := strings.IndexByte(body, '\n')
	if newline == -1 {
		return content
	}
	body = body[newline+1:]

	trimmedBody := strings.TrimRight(body, " \t\r\n")
	if !strings.HasSuffix(trimmedBody, "```") {
		return content
	}

	trimmedBody = strings.TrimRight(trimmedBody[:len(trimmedBody)-3], " \t\r\n")
	return strings.TrimSpace(trimmedBody)
}

// firstFencedBlock returns the body of the first fenced block anywhere in content.
func firstFencedBlock(content string) (string, bool) {
	start := strings.Index(content, "```")
	if start == -1 {
		return "", false
	}

	body := content[start+3:]
	newline := strings.IndexByte(body, '\n')
	if newline == -1 {
		return "", false
	}
	body = body[newline+1:]

	end := strings.Index(body, "```")
	if end == -1 {
		return "", false
	}

	return strings.TrimSpace(body[:end]), true
}
