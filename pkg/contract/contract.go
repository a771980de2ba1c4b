package contract

import (
	"fmt"
	"reflect"
	"sort"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type Contract struct {
	name       string
	typ        reflect.Type
	events     []*EventDecl
	properties []*PropertyDecl
	methods    []*MethodDecl
	members    map[string]string
}

type EventDecl struct {
	ID       string
	ArgsType reflect.Type
	source   func(target any) EventSource
}

// Source returns the event on target, or nil if target exposes none.
func (d *EventDecl) Source(target any) EventSource {
	return d.source(target)
}

type PropertyDecl struct {
	ID   string
	Type reflect.Type
	// Nested is set when the property holds another bindable object.
	Nested *Contract
	get    func(target any) (any, error)
	set    func(target any, value any) error
}

func (d *PropertyDecl) CanWrite() bool {
	return d.set != nil
}

func (d *PropertyDecl) Get(target any) (any, error) {
	return d.get(target)
}

func (d *PropertyDecl) Set(target any, value any) error {
	if d.set == nil {
		return fmt.Errorf("property %s is read-only", d.ID)
	}
	return d.set(target, value)
}

type MethodDecl struct {
	ID       string
	Name     string
	Params   []reflect.Type
	Variadic bool
	// Result is nil when the method returns nothing but an optional error.
	Result     reflect.Type
	returnsErr bool
	fn         reflect.Value
}

// ParamType returns the type argument i decodes into, expanding a trailing
// variadic parameter.
func (d *MethodDecl) ParamType(i int) (reflect.Type, bool) {
	if i < 0 {
		return nil, false
	}
	n := len(d.Params)
	if d.Variadic {
		if i < n-1 {
			return d.Params[i], true
		}
		return d.Params[n-1].Elem(), true
	}
	if i < n {
		return d.Params[i], true
	}
	return nil, false
}

// AcceptsArgs reports whether the method can be called with n arguments.
func (d *MethodDecl) AcceptsArgs(n int) bool {
	if d.Variadic {
		return n >= len(d.Params)-1
	}
	return n == len(d.Params)
}

// Call invokes the method on target. Args must already match ParamType.
func (d *MethodDecl) Call(target any, args []reflect.Value) (any, error) {
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(target))
	in = append(in, args...)

	out := d.fn.Call(in)

	if d.returnsErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	if d.Result == nil {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// New starts a contract for the interface type T. An empty name defaults to
// the Go type name.
func New[T any](name string) *Contract {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Interface {
		panic(fmt.Sprintf("contract type %v is not an interface", typ))
	}
	if name == "" {
		name = typ.Name()
	}
	return &Contract{
		name:    name,
		typ:     typ,
		members: make(map[string]string),
	}
}

func (c *Contract) Name() string {
	return c.name
}

func (c *Contract) Type() reflect.Type {
	return c.typ
}

func (c *Contract) String() string {
	return c.name
}

// Implements reports whether target can be hosted under this contract.
func (c *Contract) Implements(target any) bool {
	if target == nil {
		return false
	}
	return reflect.TypeOf(target).Implements(c.typ)
}

func (c *Contract) Events() []*EventDecl {
	return append([]*EventDecl(nil), c.events...)
}

func (c *Contract) Properties() []*PropertyDecl {
	return append([]*PropertyDecl(nil), c.properties...)
}

func (c *Contract) Methods() []*MethodDecl {
	return append([]*MethodDecl(nil), c.methods...)
}

func (c *Contract) Event(id string) (*EventDecl, bool) {
	for _, e := range c.events {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (c *Contract) Property(id string) (*PropertyDecl, bool) {
	for _, p := range c.properties {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Method resolves either a full method identifier or a bare method name.
func (c *Contract) Method(id string) (*MethodDecl, bool) {
	for _, m := range c.methods {
		if m.ID == id {
			return m, true
		}
	}
	for _, m := range c.methods {
		if m.Name == id {
			return m, true
		}
	}
	return nil, false
}

func (c *Contract) claim(name string, kind string) {
	if name == "" {
		panic(fmt.Sprintf("contract %s: empty %s name", c.name, kind))
	}
	if existing, ok := c.members[name]; ok {
		panic(fmt.Sprintf("contract %s: %s %s already declared as %s", c.name, kind, name, existing))
	}
	c.members[name] = kind
}

func checkType[T any](c *Contract) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ != c.typ {
		panic(fmt.Sprintf("contract %s is declared for %v, not %v", c.name, c.typ, typ))
	}
}

func AddEvent[T, A any](c *Contract, name string, get func(T) *Event[A]) *Contract {
	checkType[T](c)
	c.claim(name, "event")

	c.events = append(c.events, &EventDecl{
		ID:       name,
		ArgsType: reflect.TypeOf((*A)(nil)).Elem(),
		source: func(target any) EventSource {
			e := get(target.(T))
			if e == nil {
				return nil
			}
			return e
		},
	})
	return c
}

// AddProperty declares a property. A nil set makes the property read-only.
func AddProperty[T, V any](c *Contract, name string, get func(T) (V, error), set func(T, V) error) *Contract {
	c.properties = append(c.properties, newPropertyDecl(c, name, get, set))
	return c
}

// AddNestedProperty declares a property holding an object that satisfies
// the nested contract.
func AddNestedProperty[T, V any](c *Contract, name string, nested *Contract, get func(T) (V, error), set func(T, V) error) *Contract {
	decl := newPropertyDecl(c, name, get, set)
	if nested == nil || decl.Type != nested.typ {
		panic(fmt.Sprintf("contract %s: nested property %s must be of the nested contract type", c.name, name))
	}
	decl.Nested = nested
	c.properties = append(c.properties, decl)
	return c
}

func newPropertyDecl[T, V any](c *Contract, name string, get func(T) (V, error), set func(T, V) error) *PropertyDecl {
	checkType[T](c)
	if get == nil {
		panic(fmt.Sprintf("contract %s: property %s has no getter", c.name, name))
	}
	c.claim(name, "property")

	typ := reflect.TypeOf((*V)(nil)).Elem()
	decl := &PropertyDecl{
		ID:   name,
		Type: typ,
		get: func(target any) (any, error) {
			return get(target.(T))
		},
	}
	if set != nil {
		decl.set = func(target any, value any) error {
			var v V
			if value != nil {
				var ok bool
				v, ok = value.(V)
				if !ok {
					return fmt.Errorf("property %s expects %v, got %T", name, typ, value)
				}
			}
			return set(target.(T), v)
		}
	}
	return decl
}

// AddMethod declares a method from a method expression such as
// IThermostat.Reset. The expression may return nothing, a value, an error,
// or a value and an error.
func AddMethod[T any](c *Contract, name string, fn any) *Contract {
	checkType[T](c)

	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func || fv.IsNil() {
		panic(fmt.Sprintf("contract %s: method %s is not a function", c.name, name))
	}
	ft := fv.Type()
	if ft.NumIn() < 1 || ft.In(0) != c.typ {
		panic(fmt.Sprintf("contract %s: method %s must take %v as its first argument", c.name, name, c.typ))
	}

	params := make([]reflect.Type, 0, ft.NumIn()-1)
	for i := 1; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}

	numOut := ft.NumOut()
	returnsErr := numOut > 0 && ft.Out(numOut-1) == errorType
	values := numOut
	if returnsErr {
		values--
	}
	if values > 1 {
		panic(fmt.Sprintf("contract %s: method %s returns more than one value", c.name, name))
	}

	c.claim(name, "method")

	decl := &MethodDecl{
		ID:         MethodID(name, params, ft.IsVariadic()),
		Name:       name,
		Params:     params,
		Variadic:   ft.IsVariadic(),
		returnsErr: returnsErr,
		fn:         fv,
	}
	if values == 1 {
		decl.Result = ft.Out(0)
	}
	c.methods = append(c.methods, decl)
	return c
}

// MethodID qualifies a method name with its parameter types.
func MethodID(name string, params []reflect.Type, variadic bool) string {
	id := name + "("
	for i, p := range params {
		if i > 0 {
			id += ","
		}
		if variadic && i == len(params)-1 {
			id += "..." + typeName(p.Elem())
		} else {
			id += typeName(p)
		}
	}
	return id + ")"
}

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Interface && t.NumMethod() == 0 && t.Name() == "" {
		return "any"
	}
	return t.String()
}

func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
