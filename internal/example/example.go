// Package example holds the object served by the abind demo host and the
// proxy the demo app binds it with.
package example

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/log"
)

const ObjectID = "obj1"

type ArgsExampleClass struct {
	StringProperty string  `json:"stringProperty"`
	DoubleProperty float64 `json:"doubleProperty"`
}

type INestedExampleClass interface {
	NestedNotifyRequested() *contract.Event[contract.Empty]
}

type IExampleObject interface {
	NotifyRequested() *contract.Event[contract.Empty]
	StrProperty() (string, error)
	SetStrProperty(string) error
	NestedObject() (INestedExampleClass, error)
	MethodVoidStr(str string) error
	MethodStr() (string, error)
	MethodVoidParamsString(strs ...string) error
	MethodVoidExampleClass(args ArgsExampleClass) error
}

var NestedExampleClassContract = contract.AddEvent(
	contract.New[INestedExampleClass]("INestedExampleClass"),
	"NestedNotifyRequested", INestedExampleClass.NestedNotifyRequested)

var ExampleObjectContract = newExampleObjectContract()

func newExampleObjectContract() *contract.Contract {
	c := contract.New[IExampleObject]("IExampleObject")
	contract.AddEvent(c, "NotifyRequested", IExampleObject.NotifyRequested)
	contract.AddProperty(c, "StrProperty", IExampleObject.StrProperty, IExampleObject.SetStrProperty)
	contract.AddNestedProperty[IExampleObject, INestedExampleClass](c, "NestedObject", NestedExampleClassContract, IExampleObject.NestedObject, nil)
	contract.AddMethod[IExampleObject](c, "MethodVoidStr", IExampleObject.MethodVoidStr)
	contract.AddMethod[IExampleObject](c, "MethodStr", IExampleObject.MethodStr)
	contract.AddMethod[IExampleObject](c, "MethodVoidParamsString", IExampleObject.MethodVoidParamsString)
	contract.AddMethod[IExampleObject](c, "MethodVoidExampleClass", IExampleObject.MethodVoidExampleClass)
	return c
}

type NestedExampleClass struct {
	notify contract.Event[contract.Empty]
}

func (n *NestedExampleClass) NestedNotifyRequested() *contract.Event[contract.Empty] {
	return &n.notify
}

// ExampleObject logs every member access.
type ExampleObject struct {
	logger      log.Logger
	mu          *sync.Mutex
	notify      contract.Event[contract.Empty]
	strProperty string
	nested      *NestedExampleClass
}

func NewExampleObject(logger log.Logger) *ExampleObject {
	if logger == nil {
		logger = log.Nop
	}
	o := &ExampleObject{
		logger: logger,
		mu:     &sync.Mutex{},
		nested: &NestedExampleClass{},
	}
	o.notify.SetHooks(contract.EventHooks{
		OnAdd: func() error {
			o.logger.Info("Event add: NotifyRequested")
			return nil
		},
		OnRemove: func() error {
			o.logger.Info("Event remove: NotifyRequested")
			return nil
		},
	})
	return o
}

func (o *ExampleObject) NotifyRequested() *contract.Event[contract.Empty] {
	return &o.notify
}

func (o *ExampleObject) StrProperty() (string, error) {
	o.logger.Info("Property get: StrProperty")
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.strProperty, nil
}

func (o *ExampleObject) SetStrProperty(v string) error {
	o.logger.Info(fmt.Sprintf("Property set: StrProperty; value: %s", v))
	o.mu.Lock()
	defer o.mu.Unlock()
	o.strProperty = v
	return nil
}

func (o *ExampleObject) NestedObject() (INestedExampleClass, error) {
	return o.nested, nil
}

func (o *ExampleObject) MethodVoidStr(str string) error {
	o.logger.Info(fmt.Sprintf("Method invoke: MethodVoidStr(%q)", str))
	return nil
}

func (o *ExampleObject) MethodStr() (string, error) {
	o.logger.Info("Method invoke: MethodStr")
	return "MethodStr string result.", nil
}

func (o *ExampleObject) MethodVoidParamsString(strs ...string) error {
	o.logger.Info(fmt.Sprintf("Method invoke: MethodVoidParamsString(%s)", strings.Join(strs, ", ")))
	return nil
}

func (o *ExampleObject) MethodVoidExampleClass(args ArgsExampleClass) error {
	o.logger.Info(fmt.Sprintf("Method invoke: MethodVoidExampleClass(%s, %g)", args.StringProperty, args.DoubleProperty))
	return nil
}

// OnNotifyRequested raises NotifyRequested.
func (o *ExampleObject) OnNotifyRequested() {
	o.notify.Raise(contract.Empty{})
}
