package testobjects

import (
	"context"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/sender"
)

// Proxy wrappers implementing the test interfaces on top of a sender.Proxy.

type RegisteredObjectProxy struct {
	proxy   *sender.Proxy
	nonData *contract.Event[contract.Empty]
	data    *contract.Event[DataChangedArgs]
}

func NewRegisteredObjectProxy(p *sender.Proxy) IRegisteredObject {
	return &RegisteredObjectProxy{
		proxy:   p,
		nonData: sender.ProxyEvent[contract.Empty](p, "NotifyOnNonDataChanged"),
		data:    sender.ProxyEvent[DataChangedArgs](p, "NotifyOnDataChanged"),
	}
}

func (o *RegisteredObjectProxy) NotifyOnNonDataChanged() *contract.Event[contract.Empty] {
	return o.nonData
}

func (o *RegisteredObjectProxy) NotifyOnDataChanged() *contract.Event[DataChangedArgs] {
	return o.data
}

func (o *RegisteredObjectProxy) StringValueProperty() (string, error) {
	return sender.Get[string](context.Background(), o.proxy, "StringValueProperty")
}

func (o *RegisteredObjectProxy) SetStringValueProperty(v string) error {
	return sender.Set(context.Background(), o.proxy, "StringValueProperty", v)
}

func (o *RegisteredObjectProxy) NestedObject() (INestedObject, error) {
	return sender.Nested[INestedObject](o.proxy, "NestedObject")
}

func (o *RegisteredObjectProxy) VoidReturnMethod(args ...any) error {
	return sender.CallVoid(context.Background(), o.proxy, "VoidReturnMethod", args...)
}

func (o *RegisteredObjectProxy) VoidReturnMethodStr(s string) error {
	return sender.CallVoid(context.Background(), o.proxy, "VoidReturnMethodStr", s)
}

func (o *RegisteredObjectProxy) StringReturnMethodStrVal(s string, v float64) (string, error) {
	return sender.Call[string](context.Background(), o.proxy, "StringReturnMethodStrVal", s, v)
}

func (o *RegisteredObjectProxy) Explode() error {
	return sender.CallVoid(context.Background(), o.proxy, "Explode")
}

func (o *RegisteredObjectProxy) Panic() error {
	return sender.CallVoid(context.Background(), o.proxy, "Panic")
}

type NestedObjectProxy struct {
	proxy   *sender.Proxy
	changed *contract.Event[contract.Empty]
}

func NewNestedObjectProxy(p *sender.Proxy) INestedObject {
	return &NestedObjectProxy{
		proxy:   p,
		changed: sender.ProxyEvent[contract.Empty](p, "NotifyOnNestedChanged"),
	}
}

func (o *NestedObjectProxy) NotifyOnNestedChanged() *contract.Event[contract.Empty] {
	return o.changed
}

func (o *NestedObjectProxy) NestedValue() (string, error) {
	return sender.Get[string](context.Background(), o.proxy, "NestedValue")
}

type RegisteredObject2Proxy struct {
	proxy   *sender.Proxy
	changed *contract.Event[int]
}

func NewRegisteredObject2Proxy(p *sender.Proxy) IRegisteredObject2 {
	return &RegisteredObject2Proxy{
		proxy:   p,
		changed: sender.ProxyEvent[int](p, "NotifyOnCountChanged"),
	}
}

func (o *RegisteredObject2Proxy) NotifyOnCountChanged() *contract.Event[int] {
	return o.changed
}

func (o *RegisteredObject2Proxy) Count() (int, error) {
	return sender.Get[int](context.Background(), o.proxy, "Count")
}

func (o *RegisteredObject2Proxy) Add(a int, b int) (int, error) {
	return sender.Call[int](context.Background(), o.proxy, "Add", a, b)
}

func (o *RegisteredObjectProxy) Proxy() *sender.Proxy {
	return o.proxy
}

func (o *NestedObjectProxy) Proxy() *sender.Proxy {
	return o.proxy
}

func (o *RegisteredObject2Proxy) Proxy() *sender.Proxy {
	return o.proxy
}
