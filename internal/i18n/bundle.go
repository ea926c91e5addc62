package i18n

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Bundle maps message keys to the text of one locale. Nested JSON objects are
// flattened into dotted keys, so {"errors": {"NOT_FOUND": "..."}} is looked
// up as "errors.NOT_FOUND".
type Bundle map[string]string

// ParseBundle decodes a translation file.
func ParseBundle(data []byte) (Bundle, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	b := make(Bundle, len(raw))
	if err := b.flatten("", raw); err != nil {
		return nil, err
	}
	return b, nil
}

func (b Bundle) flatten(prefix string, node map[string]any) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			b[key] = val
		case map[string]any:
			if err := b.flatten(key, val); err != nil {
				return err
			}
		default:
			return fmt.Errorf("bundle key %q: unsupported value of type %T", key, v)
		}
	}
	return nil
}

var placeholder = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// interpolate replaces {{name}} with params["name"]. Unknown placeholders
// are left untouched.
func interpolate(s string, params map[string]any) string {
	if len(params) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}
