package message

import (
	"github.com/kbirk/abind/pkg/contract"
)

// ObjectBinding describes one registered object as reported by the
// recipient.
type ObjectBinding struct {
	ObjectID   string            `json:"objectId"`
	Events     []string          `json:"events"`
	Properties []PropertyBinding `json:"properties"`
	Methods    []string          `json:"methods"`
}

type PropertyBinding struct {
	PropertyID string `json:"propertyId"`
	// IsBound is set when the property value is itself registered.
	IsBound       bool           `json:"isBound"`
	BindingID     string         `json:"bindingId,omitempty"`
	ObjectBinding *ObjectBinding `json:"objectBinding,omitempty"`
}

func NewObjectBinding(objectID string, desc contract.ObjectDescription) ObjectBinding {
	b := ObjectBinding{
		ObjectID:   objectID,
		Events:     append([]string{}, desc.Events...),
		Properties: make([]PropertyBinding, 0, len(desc.Properties)),
		Methods:    append([]string{}, desc.Methods...),
	}
	for _, id := range desc.Properties {
		b.Properties = append(b.Properties, PropertyBinding{PropertyID: id})
	}
	return b
}

// Bind marks propertyID as holding the registered object nested.
func (b *ObjectBinding) Bind(propertyID string, nested ObjectBinding) bool {
	for i := range b.Properties {
		if b.Properties[i].PropertyID == propertyID {
			n := nested
			b.Properties[i].IsBound = true
			b.Properties[i].BindingID = nested.ObjectID
			b.Properties[i].ObjectBinding = &n
			return true
		}
	}
	return false
}

// NestedBinding returns the object id bound to propertyID, if any.
func (b *ObjectBinding) NestedBinding(propertyID string) (string, bool) {
	for _, p := range b.Properties {
		if p.PropertyID == propertyID && p.IsBound {
			return p.BindingID, true
		}
	}
	return "", false
}

func (b *ObjectBinding) Description() contract.ObjectDescription {
	desc := contract.ObjectDescription{
		Events:  append([]string(nil), b.Events...),
		Methods: append([]string(nil), b.Methods...),
	}
	for _, p := range b.Properties {
		desc.Properties = append(desc.Properties, p.PropertyID)
		if p.IsBound && p.ObjectBinding != nil {
			if desc.Nested == nil {
				desc.Nested = make(map[string]contract.ObjectDescription)
			}
			desc.Nested[p.PropertyID] = p.ObjectBinding.Description()
		}
	}
	return desc
}
