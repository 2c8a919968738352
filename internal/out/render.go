package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ggonzalez94/faucetbot/internal/config"
	"github.com/ggonzalez94/faucetbot/internal/model"
)

// Render writes env to w in the output mode of settings. --select projects
// the data payload, --results-only drops the envelope around it.
func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.OutputMode == "plain" {
		if !env.Success && env.Error != nil {
			_, err := fmt.Fprintf(w, "error[%d %s]: %s\n", env.Error.Code, env.Error.Type, env.Error.Message)
			return err
		}
		if err := renderPlain(w, data, settings.SelectFields); err != nil {
			return err
		}
		if settings.ResultsOnly {
			return nil
		}
		for _, warning := range env.Warnings {
			if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
				return err
			}
		}
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if settings.ResultsOnly {
		return enc.Encode(data)
	}
	env.Data = data
	return enc.Encode(env)
}

// renderPlain prints one line per record. Nested objects are flattened into
// dotted keys; order follows fields when given, else keys are sorted.
func renderPlain(w io.Writer, data any, fields []string) error {
	switch v := normalize(data).(type) {
	case nil:
		_, err := fmt.Fprintln(w, "null")
		return err
	case []any:
		if len(v) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range v {
			if _, err := fmt.Fprintln(w, line(item, fields)); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fmt.Fprintln(w, line(v, fields))
		return err
	}
}

func line(v any, fields []string) string {
	m, ok := v.(map[string]any)
	if !ok {
		buf, _ := json.Marshal(v)
		return string(buf)
	}
	flat := map[string]string{}
	flatten("", m, flat)
	keys := fields
	if len(keys) == 0 {
		keys = make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if val, ok := flat[k]; ok {
			parts = append(parts, k+"="+val)
		}
	}
	return strings.Join(parts, " ")
}

func flatten(prefix string, m map[string]any, dst map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, dst)
		case []any:
			buf, _ := json.Marshal(t)
			dst[key] = string(buf)
		case nil:
			dst[key] = "null"
		default:
			dst[key] = fmt.Sprint(t)
		}
	}
}

func project(data any, fields []string) any {
	switch t := normalize(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, pick(m, fields))
			}
		}
		return out
	case map[string]any:
		return pick(t, fields)
	default:
		return t
	}
}

func pick(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

// normalize round-trips v through JSON so structs and maps look the same.
func normalize(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
