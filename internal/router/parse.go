package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrRouteParse indicates model output that matches neither reply format.
var ErrRouteParse = errors.New("unparseable route")

// reply is the structured reply schema.
type reply struct {
	Route  *string `json:"route"`
	Answer *string `json:"answer"`
	Query  *string `json:"query"`
}

// legacyPattern matches ROUTE=HISTORY; ANSWER='...' and
// ROUTE=RETRIEVE; QUERY='...' anywhere in the reply. The payload runs to
// the last quote, so text before the markers or after the payload is ignored.
var legacyPattern = regexp.MustCompile(`(?s)\bROUTE\s*=\s*(HISTORY|RETRIEVE)\s*;\s*(ANSWER|QUERY)\s*=\s*'(.*)'`)

// parsed is a successfully parsed reply before defaults are applied.
type parsed struct {
	route Route
	text  string
}

// parseReply reads model output in the JSON format, falling back to the
// legacy marker format.
func parseReply(raw string) (p parsed, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrRouteParse, r)
		}
	}()

	s := strings.TrimSpace(raw)
	if s == "" {
		return parsed{}, fmt.Errorf("%w: empty output", ErrRouteParse)
	}
	if obj, ok := extractJSON(s); ok {
		return parseJSON(obj)
	}
	return parseLegacy(s)
}

// extractJSON returns the JSON object in s, allowing a fenced code block.
func extractJSON(s string) (string, bool) {
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s, true
	}
	return "", false
}

func parseJSON(obj string) (parsed, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.DisallowUnknownFields()
	var r reply
	if err := dec.Decode(&r); err != nil {
		return parsed{}, fmt.Errorf("%w: %v", ErrRouteParse, err)
	}
	if dec.More() {
		return parsed{}, fmt.Errorf("%w: trailing data after object", ErrRouteParse)
	}
	if r.Route == nil {
		return parsed{}, fmt.Errorf("%w: missing route", ErrRouteParse)
	}

	switch Route(strings.ToLower(*r.Route)) {
	case RouteHistory:
		if r.Answer == nil || r.Query != nil {
			return parsed{}, fmt.Errorf("%w: history route needs answer and no query", ErrRouteParse)
		}
		return parsed{route: RouteHistory, text: *r.Answer}, nil
	case RouteRetrieve:
		if r.Query == nil || r.Answer != nil {
			return parsed{}, fmt.Errorf("%w: retrieve route needs query and no answer", ErrRouteParse)
		}
		return parsed{route: RouteRetrieve, text: *r.Query}, nil
	default:
		return parsed{}, fmt.Errorf("%w: unknown route %q", ErrRouteParse, *r.Route)
	}
}

func parseLegacy(s string) (parsed, error) {
	m := legacyPattern.FindStringSubmatch(s)
	if m == nil {
		return parsed{}, fmt.Errorf("%w: no route markers", ErrRouteParse)
	}
	switch {
	case m[1] == "HISTORY" && m[2] == "ANSWER":
		return parsed{route: RouteHistory, text: m[3]}, nil
	case m[1] == "RETRIEVE" && m[2] == "QUERY":
		return parsed{route: RouteRetrieve, text: m[3]}, nil
	default:
		return parsed{}, fmt.Errorf("%w: ROUTE=%s cannot carry %s", ErrRouteParse, m[1], m[2])
	}
}
