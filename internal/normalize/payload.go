package normalize

import (
	"strconv"
	"strings"

	"github.com/ukydev/service-desk/internal/models"
)

// Payload is a decoded JSON object as returned by the backend.
type Payload map[string]any

// Get walks a dotted path ("customer.user.firstName") and returns the value
// found, if any.
func (p Payload) Get(path string) (any, bool) {
	var cur any = map[string]any(p)
	for _, key := range strings.Split(path, ".") {
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path is present, even if its value is null.
func (p Payload) Has(path string) bool {
	_, ok := p.Get(path)
	return ok
}

// String returns the value at path as a trimmed string. Numbers are
// formatted without a trailing ".0"; other types yield "".
func (p Payload) String(path string) string {
	v, ok := p.Get(path)
	if !ok {
		return ""
	}
	return scalarString(v)
}

// Object returns the nested object at path.
func (p Payload) Object(path string) (Payload, bool) {
	v, ok := p.Get(path)
	if !ok {
		return nil, false
	}
	obj, ok := asObject(v)
	return obj, ok
}

// Truthy reports whether the value at path is truthy in the loose sense the
// backend payloads rely on: true, non-zero numbers and non-empty strings.
func (p Payload) Truthy(path string) bool {
	v, ok := p.Get(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case nil:
		return false
	default:
		return true
	}
}

// Number returns the value at path as a lenient number.
func (p Payload) Number(path string) models.Number {
	v, ok := p.Get(path)
	if !ok {
		return models.Number{}
	}
	return models.NumberOf(v)
}

func asObject(v any) (Payload, bool) {
	switch t := v.(type) {
	case map[string]any:
		return Payload(t), true
	case Payload:
		return t, true
	default:
		return nil, false
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
