package recipient

import (
	"fmt"
	"reflect"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/message"
)

type registeredObject struct {
	id         string
	contract   *contract.Contract
	target     any
	events     map[string]*registeredEvent
	properties map[string]*registeredProperty
	methods    map[string]*registeredMethod
	binding    message.ObjectBinding
}

// maxNestedDepth bounds nested registration for targets whose identity
// cannot be compared, such as values returned by copy.
const maxNestedDepth = 32

// buildObjects decomposes target into its members, then does the same for
// every non-nil nested object property. The parent comes first. path holds
// the targets from the root down to target's parent.
func (r *Recipient) buildObjects(objectID string, c *contract.Contract, target any, nested []*contract.Contract, path []any) ([]*registeredObject, error) {
	for _, ancestor := range path {
		if sameTarget(ancestor, target) {
			return nil, fmt.Errorf("%w: cyclic nested object %s", ErrContractMismatch, objectID)
		}
	}
	if len(path) > maxNestedDepth {
		return nil, fmt.Errorf("%w: nested object %s exceeds depth %d", ErrContractMismatch, objectID, maxNestedDepth)
	}
	path = append(path[:len(path):len(path)], target)

	obj := &registeredObject{
		id:         objectID,
		contract:   c,
		target:     target,
		events:     make(map[string]*registeredEvent),
		properties: make(map[string]*registeredProperty),
		methods:    make(map[string]*registeredMethod),
		binding:    message.NewObjectBinding(objectID, contract.Describe(c)),
	}

	for _, decl := range c.Events() {
		source := decl.Source(target)
		if source == nil {
			return nil, fmt.Errorf("%w: event %s on %s has no source", ErrContractMismatch, decl.ID, objectID)
		}
		obj.events[decl.ID] = newRegisteredEvent(r, objectID, decl.ID, source)
	}
	for _, decl := range c.Methods() {
		obj.methods[decl.ID] = &registeredMethod{
			objectID: objectID,
			decl:     decl,
			target:   target,
			codec:    r.codec,
		}
	}

	objects := []*registeredObject{obj}
	for _, decl := range c.Properties() {
		obj.properties[decl.ID] = &registeredProperty{
			objectID: objectID,
			decl:     decl,
			target:   target,
			codec:    r.codec,
		}

		nc := nestedContract(decl, nested)
		if nc == nil {
			continue
		}
		var value any
		err := protect(func() error {
			var err error
			value, err = decl.Get(target)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("reading nested property %s on %s: %w", decl.ID, objectID, err)
		}
		if isNil(value) {
			continue
		}
		children, err := r.buildObjects(objectID+"/"+decl.ID, nc, value, nested, path)
		if err != nil {
			return nil, err
		}
		obj.binding.Bind(decl.ID, children[0].binding)
		objects = append(objects, children...)
	}
	return objects, nil
}

func nestedContract(decl *contract.PropertyDecl, nested []*contract.Contract) *contract.Contract {
	if decl.Nested != nil {
		return decl.Nested
	}
	for _, nc := range nested {
		if nc.Type() == decl.Type {
			return nc
		}
	}
	return nil
}

// sameTarget reports whether a and b are the same reference. Plain values
// never match.
func sameTarget(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (o *registeredObject) event(eventID string) (*registeredEvent, error) {
	e, ok := o.events[eventID]
	if !ok {
		return nil, message.NewBindingError(o.id, eventID, nil, "event %s not found on %s", eventID, o.id)
	}
	return e, nil
}

func (o *registeredObject) property(propertyID string) (*registeredProperty, error) {
	p, ok := o.properties[propertyID]
	if !ok {
		return nil, message.NewBindingError(o.id, propertyID, nil, "property %s not found on %s", propertyID, o.id)
	}
	return p, nil
}

// method resolves a full method id or, failing that, a bare method name.
func (o *registeredObject) method(methodID string) (*registeredMethod, error) {
	if m, ok := o.methods[methodID]; ok {
		return m, nil
	}
	if decl, ok := o.contract.Method(methodID); ok {
		return o.methods[decl.ID], nil
	}
	return nil, message.NewBindingError(o.id, methodID, nil, "method %s not found on %s", methodID, o.id)
}

func (o *registeredObject) eachEvent(fn func(*registeredEvent)) {
	for _, decl := range o.contract.Events() {
		fn(o.events[decl.ID])
	}
}
