package fields

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var errNotSettable = errors.New("composite fields are computed, not settable")

// Adapt coerces a raw caller-supplied value into the normalized form the
// storage shape expects for def's datatype. tristate controls whether bool
// fields may hold an unset (nil) state.
func Adapt(def *Definition, raw any, tristate bool) (any, error) {
	switch def.Datatype {
	case DatatypeComposite:
		return nil, errors.WithStack(errNotSettable)
	case DatatypeInt:
		return adaptInt(raw)
	case DatatypeFloat:
		return adaptFloat(raw)
	case DatatypeRating:
		return adaptRating(raw)
	case DatatypeBool:
		return adaptBool(raw, tristate)
	case DatatypeDatetime:
		return adaptDatetime(raw)
	case DatatypeEnumeration:
		return adaptEnumeration(def, raw)
	case DatatypeText, DatatypeComments:
		if def.IsMultiple {
			return adaptMultiText(def, raw), nil
		}
		return adaptText(raw), nil
	case DatatypeSeries:
		return adaptText(raw), nil
	default:
		return nil, errors.Errorf("unknown datatype %q", def.Datatype)
	}
}

func isNoneString(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "none")
}

func adaptInt(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		if isNoneString(v) || strings.TrimSpace(v) == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "not an integer: %q", v)
		}
		return n, nil
	default:
		return nil, errors.Errorf("cannot coerce %T to int", raw)
	}
}

func adaptFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		if isNoneString(v) || strings.TrimSpace(v) == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "not a number: %q", v)
		}
		return f, nil
	default:
		return nil, errors.Errorf("cannot coerce %T to float", raw)
	}
}

// adaptRating accepts anything numeric and clamps to [0, 10].
func adaptRating(raw any) (any, error) {
	val, err := adaptInt(raw)
	if err != nil || val == nil {
		return val, err
	}
	n := val.(int64)
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return n, nil
}

func adaptBool(raw any, tristate bool) (any, error) {
	var result any
	switch v := raw.(type) {
	case nil:
		result = nil
	case bool:
		result = v
	case int:
		result = v != 0
	case int64:
		result = v != 0
	case float64:
		result = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "t", "1":
			result = true
		case "false", "no", "f", "0":
			result = false
		case "none", "":
			result = nil
		default:
			return nil, errors.Errorf("not a boolean: %q", v)
		}
	default:
		return nil, errors.Errorf("cannot coerce %T to bool", raw)
	}

	if result == nil && !tristate {
		return false, nil
	}
	return result, nil
}

func adaptDatetime(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v.UTC(), nil
	case string:
		if isNoneString(v) || strings.TrimSpace(v) == "" {
			return nil, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, errors.Errorf("unrecognized datetime: %q", v)
	default:
		return nil, errors.Errorf("cannot coerce %T to datetime", raw)
	}
}

func adaptEnumeration(def *Definition, raw any) (any, error) {
	s := adaptText(raw)
	if s == nil {
		return nil, nil
	}
	allowed := def.enumValues()
	if len(allowed) == 0 {
		return s, nil
	}
	for _, v := range allowed {
		if v == s {
			return s, nil
		}
	}
	return nil, errors.Errorf("value %q not in enumeration for %q", s, def.Label)
}

func adaptText(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		out := collapseWhitespace(v)
		if out == "" {
			return nil
		}
		return out
	default:
		out := collapseWhitespace(stringify(raw))
		if out == "" {
			return nil
		}
		return out
	}
}

// adaptMultiText splits on the field's input separator, trims, collapses
// internal whitespace runs and drops empty entries. List inputs have each
// element split again, so ["calm, focused"] becomes ["calm", "focused"].
func adaptMultiText(def *Definition, raw any) []string {
	sep := def.Separators.UIInput
	if sep == "" {
		sep = ","
	}

	var parts []string
	appendSplit := func(s string) {
		for _, piece := range strings.Split(s, sep) {
			piece = collapseWhitespace(piece)
			if piece != "" {
				parts = append(parts, piece)
			}
		}
	}

	switch v := raw.(type) {
	case nil:
	case string:
		appendSplit(v)
	case []string:
		for _, item := range v {
			appendSplit(item)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				appendSplit(s)
			} else {
				appendSplit(stringify(item))
			}
		}
	default:
		appendSplit(stringify(raw))
	}
	return parts
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
