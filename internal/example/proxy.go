package example

import (
	"context"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/sender"
)

type ExampleObjectProxy struct {
	proxy  *sender.Proxy
	notify *contract.Event[contract.Empty]
}

func NewExampleObjectProxy(p *sender.Proxy) IExampleObject {
	return &ExampleObjectProxy{
		proxy:  p,
		notify: sender.ProxyEvent[contract.Empty](p, "NotifyRequested"),
	}
}

func (o *ExampleObjectProxy) NotifyRequested() *contract.Event[contract.Empty] {
	return o.notify
}

func (o *ExampleObjectProxy) StrProperty() (string, error) {
	return sender.Get[string](context.Background(), o.proxy, "StrProperty")
}

func (o *ExampleObjectProxy) SetStrProperty(v string) error {
	return sender.Set(context.Background(), o.proxy, "StrProperty", v)
}

func (o *ExampleObjectProxy) NestedObject() (INestedExampleClass, error) {
	return sender.Nested[INestedExampleClass](o.proxy, "NestedObject")
}

func (o *ExampleObjectProxy) MethodVoidStr(str string) error {
	return sender.CallVoid(context.Background(), o.proxy, "MethodVoidStr", str)
}

func (o *ExampleObjectProxy) MethodStr() (string, error) {
	return sender.Call[string](context.Background(), o.proxy, "MethodStr")
}

func (o *ExampleObjectProxy) MethodVoidParamsString(strs ...string) error {
	args := make([]any, len(strs))
	for i, s := range strs {
		args[i] = s
	}
	return sender.CallVoid(context.Background(), o.proxy, "MethodVoidParamsString", args...)
}

func (o *ExampleObjectProxy) MethodVoidExampleClass(args ArgsExampleClass) error {
	return sender.CallVoid(context.Background(), o.proxy, "MethodVoidExampleClass", args)
}

type NestedExampleClassProxy struct {
	notify *contract.Event[contract.Empty]
}

func NewNestedExampleClassProxy(p *sender.Proxy) INestedExampleClass {
	return &NestedExampleClassProxy{
		notify: sender.ProxyEvent[contract.Empty](p, "NestedNotifyRequested"),
	}
}

func (o *NestedExampleClassProxy) NestedNotifyRequested() *contract.Event[contract.Empty] {
	return o.notify
}

// RegisterProxies registers the example contracts with s.
func RegisterProxies(s *sender.Sender) error {
	if err := sender.Register(s, ExampleObjectContract, NewExampleObjectProxy); err != nil {
		return err
	}
	return sender.Register(s, NestedExampleClassContract, NewNestedExampleClassProxy)
}
