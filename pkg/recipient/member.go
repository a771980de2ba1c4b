package recipient

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/message"
)

type registeredProperty struct {
	objectID string
	decl     *contract.PropertyDecl
	target   any
	codec    message.Codec
}

func (p *registeredProperty) get() (json.RawMessage, error) {
	var value any
	err := protect(func() error {
		var err error
		value, err = p.decl.Get(p.target)
		return err
	})
	if err != nil {
		return nil, message.NewBindingError(p.objectID, p.decl.ID, err, "failed to get %s on %s", p.decl.ID, p.objectID)
	}
	raw, err := p.codec.Encode(value)
	if err != nil {
		return nil, message.NewBindingError(p.objectID, p.decl.ID, err, "failed to encode %s on %s", p.decl.ID, p.objectID)
	}
	return raw, nil
}

func (p *registeredProperty) set(raw json.RawMessage) error {
	if !p.decl.CanWrite() {
		return message.NewBindingError(p.objectID, p.decl.ID, nil, "property %s on %s is read-only", p.decl.ID, p.objectID)
	}
	ptr := reflect.New(p.decl.Type)
	if err := p.codec.Decode(raw, ptr.Interface()); err != nil {
		return message.NewBindingError(p.objectID, p.decl.ID, err, "failed to decode value for %s on %s", p.decl.ID, p.objectID)
	}
	err := protect(func() error {
		return p.decl.Set(p.target, ptr.Elem().Interface())
	})
	if err != nil {
		return message.NewBindingError(p.objectID, p.decl.ID, err, "failed to set %s on %s", p.decl.ID, p.objectID)
	}
	return nil
}

type registeredMethod struct {
	objectID string
	decl     *contract.MethodDecl
	target   any
	codec    message.Codec
}

func (m *registeredMethod) invoke(args []json.RawMessage) (json.RawMessage, error) {
	if !m.decl.AcceptsArgs(len(args)) {
		return nil, message.NewBindingError(m.objectID, m.decl.ID, nil,
			"failed to invoke %s on %s: unexpected argument count %d", m.decl.ID, m.objectID, len(args))
	}

	values := make([]reflect.Value, len(args))
	for i, raw := range args {
		typ, _ := m.decl.ParamType(i)
		ptr := reflect.New(typ)
		if err := m.codec.Decode(raw, ptr.Interface()); err != nil {
			return nil, message.NewBindingError(m.objectID, m.decl.ID, err,
				"failed to decode argument %d of %s on %s", i, m.decl.ID, m.objectID)
		}
		values[i] = ptr.Elem()
	}

	var result any
	err := protect(func() error {
		var err error
		result, err = m.decl.Call(m.target, values)
		return err
	})
	if err != nil {
		return nil, message.NewBindingError(m.objectID, m.decl.ID, err, "failed to invoke %s on %s", m.decl.ID, m.objectID)
	}

	raw, err := m.codec.Encode(result)
	if err != nil {
		return nil, message.NewBindingError(m.objectID, m.decl.ID, err, "failed to encode result of %s on %s", m.decl.ID, m.objectID)
	}
	return raw, nil
}

// protect runs fn, turning a panic in hosted code into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
