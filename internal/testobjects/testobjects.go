// Package testobjects holds the bindable objects the package tests share.
package testobjects

import (
	"errors"
	"sync"

	"github.com/kbirk/abind/pkg/contract"
)

type DataChangedArgs struct {
	Name string `json:"name"`
	Data int    `json:"data"`
}

type INestedObject interface {
	NotifyOnNestedChanged() *contract.Event[contract.Empty]
	NestedValue() (string, error)
}

type IRegisteredObject interface {
	NotifyOnNonDataChanged() *contract.Event[contract.Empty]
	NotifyOnDataChanged() *contract.Event[DataChangedArgs]
	StringValueProperty() (string, error)
	SetStringValueProperty(string) error
	NestedObject() (INestedObject, error)
	VoidReturnMethod(args ...any) error
	VoidReturnMethodStr(s string) error
	StringReturnMethodStrVal(s string, v float64) (string, error)
	Explode() error
	Panic() error
}

type IRegisteredObject2 interface {
	NotifyOnCountChanged() *contract.Event[int]
	Count() (int, error)
	Add(a int, b int) (int, error)
}

var ErrExploded = errors.New("exploded")

var NestedObjectContract = newNestedObjectContract()

var RegisteredObjectContract = newRegisteredObjectContract()

var RegisteredObject2Contract = newRegisteredObject2Contract()

func newNestedObjectContract() *contract.Contract {
	c := contract.New[INestedObject]("INestedObject")
	contract.AddEvent(c, "NotifyOnNestedChanged", INestedObject.NotifyOnNestedChanged)
	contract.AddProperty[INestedObject, string](c, "NestedValue", INestedObject.NestedValue, nil)
	return c
}

func newRegisteredObjectContract() *contract.Contract {
	c := contract.New[IRegisteredObject]("IRegisteredObject")
	contract.AddEvent(c, "NotifyOnNonDataChanged", IRegisteredObject.NotifyOnNonDataChanged)
	contract.AddEvent(c, "NotifyOnDataChanged", IRegisteredObject.NotifyOnDataChanged)
	contract.AddProperty(c, "StringValueProperty", IRegisteredObject.StringValueProperty, IRegisteredObject.SetStringValueProperty)
	contract.AddProperty[IRegisteredObject, INestedObject](c, "NestedObject", IRegisteredObject.NestedObject, nil)
	contract.AddMethod[IRegisteredObject](c, "VoidReturnMethod", IRegisteredObject.VoidReturnMethod)
	contract.AddMethod[IRegisteredObject](c, "VoidReturnMethodStr", IRegisteredObject.VoidReturnMethodStr)
	contract.AddMethod[IRegisteredObject](c, "StringReturnMethodStrVal", IRegisteredObject.StringReturnMethodStrVal)
	contract.AddMethod[IRegisteredObject](c, "Explode", IRegisteredObject.Explode)
	contract.AddMethod[IRegisteredObject](c, "Panic", IRegisteredObject.Panic)
	return c
}

func newRegisteredObject2Contract() *contract.Contract {
	c := contract.New[IRegisteredObject2]("IRegisteredObject2")
	contract.AddEvent(c, "NotifyOnCountChanged", IRegisteredObject2.NotifyOnCountChanged)
	contract.AddProperty[IRegisteredObject2, int](c, "Count", IRegisteredObject2.Count, nil)
	contract.AddMethod[IRegisteredObject2](c, "Add", IRegisteredObject2.Add)
	return c
}

type NestedObject struct {
	changed contract.Event[contract.Empty]
	value   string
}

func NewNestedObject(value string) *NestedObject {
	return &NestedObject{value: value}
}

func (o *NestedObject) NotifyOnNestedChanged() *contract.Event[contract.Empty] { return &o.changed }
func (o *NestedObject) NestedValue() (string, error)                           { return o.value, nil }

type RegisteredObject struct {
	mu       *sync.Mutex
	nonData  contract.Event[contract.Empty]
	data     contract.Event[DataChangedArgs]
	value    string
	nested   *NestedObject
	calls    [][]any
	strCalls []string
}

func NewRegisteredObject(nested *NestedObject) *RegisteredObject {
	return &RegisteredObject{
		mu:     &sync.Mutex{},
		nested: nested,
	}
}

func (o *RegisteredObject) NotifyOnNonDataChanged() *contract.Event[contract.Empty] {
	return &o.nonData
}

func (o *RegisteredObject) NotifyOnDataChanged() *contract.Event[DataChangedArgs] {
	return &o.data
}

func (o *RegisteredObject) StringValueProperty() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, nil
}

func (o *RegisteredObject) SetStringValueProperty(v string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.value = v
	return nil
}

func (o *RegisteredObject) NestedObject() (INestedObject, error) {
	if o.nested == nil {
		return nil, nil
	}
	return o.nested, nil
}

func (o *RegisteredObject) VoidReturnMethod(args ...any) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, args)
	return nil
}

func (o *RegisteredObject) VoidReturnMethodStr(s string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strCalls = append(o.strCalls, s)
	return nil
}

func (o *RegisteredObject) StringReturnMethodStrVal(s string, v float64) (string, error) {
	if v < 0 {
		return "", errors.New("negative value")
	}
	return s, nil
}

func (o *RegisteredObject) Explode() error {
	return ErrExploded
}

func (o *RegisteredObject) Panic() error {
	panic("target panicked")
}

// Calls returns the argument lists VoidReturnMethod received.
func (o *RegisteredObject) Calls() [][]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]any(nil), o.calls...)
}

func (o *RegisteredObject) StrCalls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.strCalls...)
}

func (o *RegisteredObject) RaiseNonDataChanged() {
	o.nonData.Raise(contract.Empty{})
}

func (o *RegisteredObject) RaiseDataChanged(name string, data int) {
	o.data.Raise(DataChangedArgs{Name: name, Data: data})
}

type RegisteredObject2 struct {
	changed contract.Event[int]
	mu      *sync.Mutex
	count   int
}

func NewRegisteredObject2() *RegisteredObject2 {
	return &RegisteredObject2{mu: &sync.Mutex{}}
}

func (o *RegisteredObject2) NotifyOnCountChanged() *contract.Event[int] { return &o.changed }

func (o *RegisteredObject2) Count() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count, nil
}

func (o *RegisteredObject2) Add(a int, b int) (int, error) {
	o.mu.Lock()
	o.count++
	count := o.count
	o.mu.Unlock()

	o.changed.Raise(count)
	return a + b, nil
}
