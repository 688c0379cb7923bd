package vectorstore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// metaKey holds the JSON-encoded metadata so typed values survive a
// backend that only stores strings.
const metaKey = "_meta"

// flattenMetadata renders metadata as strings for backends with string-only
// payloads and adds the lossless JSON copy under metaKey.
func flattenMetadata(metadata map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = stringify(v)
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	out[metaKey] = string(raw)
	return out, nil
}

// unflattenMetadata reverses flattenMetadata. Entries written without
// metaKey come back as plain strings.
func unflattenMetadata(flat map[string]string) map[string]any {
	if raw, ok := flat[metaKey]; ok {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return m
		}
	}
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if k != metaKey {
			out[k] = v
		}
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
