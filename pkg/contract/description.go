package contract

import (
	"github.com/kbirk/abind/internal/util"
)

// ObjectDescription is the comparable shape of a bindable object: its member
// identifiers and, for nested object properties, the nested shapes.
type ObjectDescription struct {
	Events     []string
	Properties []string
	Methods    []string
	Nested     map[string]ObjectDescription
}

func Describe(c *Contract) ObjectDescription {
	desc := ObjectDescription{}
	for _, e := range c.events {
		desc.Events = append(desc.Events, e.ID)
	}
	for _, p := range c.properties {
		desc.Properties = append(desc.Properties, p.ID)
		if p.Nested != nil {
			if desc.Nested == nil {
				desc.Nested = make(map[string]ObjectDescription)
			}
			desc.Nested[p.ID] = Describe(p.Nested)
		}
	}
	for _, m := range c.methods {
		desc.Methods = append(desc.Methods, m.ID)
	}
	return desc
}

// Equal compares member sets ignoring order. Nested shapes are compared only
// for properties both sides describe as nested.
func (d ObjectDescription) Equal(other ObjectDescription) bool {
	if !sameSet(d.Events, other.Events) ||
		!sameSet(d.Properties, other.Properties) ||
		!sameSet(d.Methods, other.Methods) {
		return false
	}
	for id, nested := range d.Nested {
		otherNested, ok := other.Nested[id]
		if !ok {
			continue
		}
		if !nested.Equal(otherNested) {
			return false
		}
	}
	return true
}

func sameSet(a, b []string) bool {
	a = util.RemoveDuplicates(sortedCopy(a))
	b = util.RemoveDuplicates(sortedCopy(b))
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
