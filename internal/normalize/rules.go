package normalize

import "strings"

// rule extracts one candidate value for a field. Rules for a field are tried
// in order and the first non-empty result wins.
type rule func(p Payload) string

// field reads a single path.
func field(path string) rule {
	return func(p Payload) string { return p.String(path) }
}

// fullName joins two paths with a space, only when both are present.
func fullName(first, last string) rule {
	return func(p Payload) string {
		f, l := p.String(first), p.String(last)
		if f == "" || l == "" {
			return ""
		}
		return f + " " + l
	}
}

// except discards a value equal to one of the given placeholders.
func except(r rule, placeholders ...string) rule {
	return func(p Payload) string {
		v := r(p)
		for _, ph := range placeholders {
			if strings.EqualFold(v, ph) {
				return ""
			}
		}
		return v
	}
}

// scalar reads a path only when it holds a scalar, not an object.
func scalar(path string) rule {
	return func(p Payload) string {
		if _, isObj := p.Object(path); isObj {
			return ""
		}
		return p.String(path)
	}
}

// address joins the street/city/state/postalCode parts under prefix.
func address(prefix string) rule {
	return func(p Payload) string {
		obj, ok := p.Object(prefix)
		if !ok {
			return ""
		}
		var parts []string
		for _, k := range []string{"street", "city", "state", "postalCode"} {
			if v := obj.String(k); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ", ")
	}
}

// first applies rules in order and returns the first non-empty value, or def.
func first(p Payload, def string, rules ...rule) string {
	for _, r := range rules {
		if v := r(p); v != "" {
			return v
		}
	}
	return def
}
