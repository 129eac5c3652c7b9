package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
var firstObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ParseJSONObject tries, in order: a strict parse of raw; a parse of
// the contents of the first markdown code fence; a parse of the first
// "{...}" substring; and finally a field-by-field regex extraction
// into fieldPatterns (key -> compiled pattern with one capture group).
// The JSON-parse stages return values as decoded (a tags array stays a
// []interface{}); the regex stage yields strings only. Callers that need
// structured values (e.g. a tags array) handle those keys themselves.
func ParseJSONObject(raw string, fieldPatterns map[string]*regexp.Regexp) (map[string]interface{}, bool) {
	if obj, ok := tryUnmarshal(raw); ok {
		return obj, true
	}

	if m := codeFenceRe.FindStringSubmatch(raw); m != nil {
		if obj, ok := tryUnmarshal(m[1]); ok {
			return obj, true
		}
	}

	if m := firstObjectRe.FindString(raw); m != "" {
		if obj, ok := tryUnmarshal(m); ok {
			return obj, true
		}
	}

	if len(fieldPatterns) == 0 {
		return nil, false
	}
	fields := make(map[string]interface{})
	found := false
	for key, pattern := range fieldPatterns {
		if m := pattern.FindStringSubmatch(raw); len(m) > 1 {
			fields[key] = m[1]
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return fields, true
}

func tryUnmarshal(s string) (map[string]interface{}, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func stringField(obj map[string]interface{}, key string) string {
	v, ok := obj[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringSliceField(obj map[string]interface{}, key string) []string {
	v, ok := obj[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
