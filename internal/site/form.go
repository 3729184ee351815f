package site

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const maxFormMemory = 32 << 20 // 32 MiB

// CaptureForm reads the request's fields into a flat name->value map at
// the moment of the call: every posted field is included, empty values
// too, and no validation happens here. JSON bodies, multipart forms, and
// urlencoded forms are all accepted.
func CaptureForm(r *http.Request) (map[string]string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		values := make(map[string]string, len(raw))
		for name, v := range raw {
			values[name] = stringifyFieldValue(v)
		}
		return values, nil
	}

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, fmt.Errorf("invalid multipart body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("invalid form body: %w", err)
		}
	}
	return FormValues(r.PostForm), nil
}

// FormValues flattens url.Values to first-value-wins strings.
func FormValues(form url.Values) map[string]string {
	values := make(map[string]string, len(form))
	for name, vs := range form {
		if len(vs) > 0 {
			values[name] = vs[0]
		} else {
			values[name] = ""
		}
	}
	return values
}

func stringifyFieldValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		// JSON numbers; keep integers integral.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
