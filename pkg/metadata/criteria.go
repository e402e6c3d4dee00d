package metadata

import (
	"slices"
	"sort"
)

// Criterion selects callers by one attribute value asserted by an issuer.
type Criterion struct {
	Issuer    string `json:"issuer" validate:"required"`
	Attribute string `json:"attribute" validate:"required"`
	Value     string `json:"value" validate:"required"`
}

// AttributeSet is the set of attributes an issuer asserts about a caller.
type AttributeSet struct {
	Issuer string              `json:"issuer"`
	Values map[string][]string `json:"values"`
}

// Matches reports whether the criterion selects a caller with this set:
// the issuer must be the same and the value must be among the attribute's
// values.
func (a AttributeSet) Matches(c Criterion) bool {
	if c.Issuer != a.Issuer {
		return false
	}
	return slices.Contains(a.Values[c.Attribute], c.Value)
}

// Criteria lists every criterion the set satisfies, in a stable order.
func (a AttributeSet) Criteria() []Criterion {
	names := make([]string, 0, len(a.Values))
	for name := range a.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Criterion
	for _, name := range names {
		for _, v := range a.Values[name] {
			out = append(out, Criterion{Issuer: a.Issuer, Attribute: name, Value: v})
		}
	}
	return out
}

// With returns a copy of the set with value added to attribute.
func (a AttributeSet) With(attribute, value string) AttributeSet {
	values := make(map[string][]string, len(a.Values)+1)
	for k, v := range a.Values {
		values[k] = slices.Clone(v)
	}
	if !slices.Contains(values[attribute], value) {
		values[attribute] = append(values[attribute], value)
	}
	return AttributeSet{Issuer: a.Issuer, Values: values}
}
