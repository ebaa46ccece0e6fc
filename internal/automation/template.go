package automation

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

const (
	placeholderStart = "{{"
	placeholderEnd   = "}}"
)

// Render replaces every {{key}} in tmpl with the string form of ctx[key].
// The key must match exactly: {{ key }} is not the same placeholder.
// Placeholders whose key is absent are left verbatim. Render performs no
// path traversal: use Flatten to expose nested values as dotted keys.
//
// Render is pure and safe for concurrent use.
//
// Example:
//
//	Render("Temp is {{value}}C", map[string]any{"value": 31.2}) // "Temp is 31.2C"
func Render(tmpl string, ctx map[string]any) string {
	return fasttemplate.ExecuteFuncString(tmpl, placeholderStart, placeholderEnd, func(w io.Writer, key string) (int, error) {
		v, ok := ctx[key]
		if !ok {
			return io.WriteString(w, placeholderStart+key+placeholderEnd)
		}
		return io.WriteString(w, stringify(v))
	})
}

// Flatten returns a copy of ctx where every nested map is also reachable
// through dotted keys. The nested map itself stays under its own key.
//
//	Flatten(map[string]any{"sensor": map[string]any{"name": "t1"}})
//	// {"sensor": {...}, "sensor.name": "t1"}
func Flatten(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	flattenInto(out, "", ctx)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		out[key] = v
		switch nested := v.(type) {
		case map[string]any:
			flattenInto(out, key, nested)
		case TriggerContext:
			flattenInto(out, key, nested)
		}
	}
}

// stringify converts a context value to the form used in rendered
// templates and string comparisons. Integers render bare and floats keep a
// decimal point. nil becomes "" and composite values become JSON.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case map[string]any, TriggerContext, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// renderJSONObject renders tmpl and parses the result as a JSON object.
// An empty template yields a nil map.
func renderJSONObject(tmpl string, ctx map[string]any) (map[string]any, error) {
	if strings.TrimSpace(tmpl) == "" {
		return nil, nil
	}
	rendered := Render(tmpl, ctx)

	var obj map[string]any
	if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON object %q: %v", ErrRender, rendered, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: template rendered to null", ErrRender)
	}
	return obj, nil
}

// formatFloat renders a float so it stays distinguishable from an integer:
// 30 becomes "30.0". Very large and very small magnitudes use exponent form.
func formatFloat(f float64, bitSize int) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, bitSize)
	}
	if abs := math.Abs(f); abs >= 1e16 || (abs != 0 && abs < 1e-4) {
		return strconv.FormatFloat(f, 'e', -1, bitSize)
	}
	s := strconv.FormatFloat(f, 'f', -1, bitSize)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
