package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON means no usable JSON value could be recovered from a completion.
var ErrNoJSON = errors.New("no JSON found in completion")

// StripFences returns the body of the first ``` fenced block, or the trimmed
// input when there is none. An unterminated fence (truncated output) yields
// everything after the opening line.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	body := s[start+3:]
	if nl := strings.Index(body, "\n"); nl != -1 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// scanner walks JSON text tracking nesting depth outside of strings.
type scanner struct {
	depth    int
	inString bool
	escaped  bool
}

// step consumes one byte and reports whether it is structural (outside a string).
func (sc *scanner) step(ch byte) bool {
	if sc.escaped {
		sc.escaped = false
		return false
	}
	if sc.inString {
		switch ch {
		case '\\':
			sc.escaped = true
		case '"':
			sc.inString = false
		}
		return false
	}
	if ch == '"' {
		sc.inString = true
		return false
	}
	return true
}

// extractBalanced returns the balanced value starting at the first open byte.
func extractBalanced(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return "", false
	}
	var sc scanner
	for i := start; i < len(s); i++ {
		ch := s[i]
		if !sc.step(ch) {
			continue
		}
		switch ch {
		case '{', '[':
			sc.depth++
		case '}', ']':
			sc.depth--
			if sc.depth == 0 {
				if ch != close {
					return "", false
				}
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractObject returns the first complete top-level JSON object in s.
func ExtractObject(s string) (string, bool) {
	return extractBalanced(s, '{', '}')
}

// ExtractArray returns the first complete top-level JSON array in s.
func ExtractArray(s string) (string, bool) {
	return extractBalanced(s, '[', ']')
}

// SalvageArray recovers a truncated array: it keeps every element that
// closed before the cut and re-terminates the array.
func SalvageArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start == -1 {
		return "", false
	}
	var sc scanner
	lastComplete := -1
	for i := start; i < len(s); i++ {
		ch := s[i]
		if !sc.step(ch) {
			continue
		}
		switch ch {
		case '{', '[':
			sc.depth++
		case '}', ']':
			sc.depth--
			if sc.depth == 1 {
				lastComplete = i
			}
			if sc.depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	if lastComplete == -1 {
		return "", false
	}
	return s[start:lastComplete+1] + "]", true
}

// cutAtSyntaxError keeps the elements of arr that closed before a syntax
// error and re-terminates the array.
func cutAtSyntaxError(arr string, err error) (string, bool) {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) || syntaxErr.Offset < 1 || int(syntaxErr.Offset) > len(arr) {
		return "", false
	}
	// Offset counts the offending byte; drop it so a '}' that closes the
	// broken element is not taken as complete.
	return SalvageArray(arr[:syntaxErr.Offset-1])
}

// DecodeArray pulls a JSON array of raw elements out of a completion. The
// array may be bare or wrapped in an object under key. salvaged reports that
// the completion was truncated or malformed and only the elements before the
// damage were kept.
func DecodeArray(completion, key string) (items []json.RawMessage, salvaged bool, err error) {
	text := StripFences(completion)
	first := strings.IndexAny(text, "[{")
	if first == -1 {
		return nil, false, ErrNoJSON
	}
	text = text[first:]

	if text[0] == '{' && key != "" {
		if obj, ok := ExtractObject(text); ok {
			var wrapper map[string]json.RawMessage
			if json.Unmarshal([]byte(obj), &wrapper) == nil {
				if inner, ok := wrapper[key]; ok && json.Unmarshal(inner, &items) == nil {
					return items, false, nil
				}
			}
		}
	}

	arrayStart := strings.IndexByte(text, '[')
	if arrayStart == -1 {
		return nil, false, ErrNoJSON
	}
	text = text[arrayStart:]

	if arr, ok := ExtractArray(text); ok {
		err := json.Unmarshal([]byte(arr), &items)
		if err == nil {
			return items, false, nil
		}
		if cut, ok := cutAtSyntaxError(arr, err); ok {
			items = nil
			if json.Unmarshal([]byte(cut), &items) == nil {
				return items, true, nil
			}
		}
	}

	if arr, ok := SalvageArray(text); ok {
		err := json.Unmarshal([]byte(arr), &items)
		if err == nil {
			return items, true, nil
		}
		if cut, ok := cutAtSyntaxError(arr, err); ok {
			items = nil
			if json.Unmarshal([]byte(cut), &items) == nil {
				return items, true, nil
			}
		}
	}
	return nil, false, ErrNoJSON
}

// DecodeObject unmarshals the first JSON object in a completion into dest.
func DecodeObject(completion string, dest interface{}) error {
	obj, ok := ExtractObject(StripFences(completion))
	if !ok {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(obj), dest)
}
