package contract

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type IThermostat interface {
	TemperatureChanged() *Event[float64]
	Target() (float64, error)
	SetTarget(float64) error
	Label() (string, error)
	Reset()
	Describe(prefix string) (string, error)
	Log(level int, parts ...string) error
}

type IDisplay interface {
	Brightness() (int, error)
}

type thermostat struct {
	changed Event[float64]
	target  float64
	logged  []string
}

func (t *thermostat) TemperatureChanged() *Event[float64] { return &t.changed }
func (t *thermostat) Target() (float64, error)            { return t.target, nil }
func (t *thermostat) SetTarget(v float64) error {
	if v < 0 {
		return errors.New("below zero")
	}
	t.target = v
	return nil
}
func (t *thermostat) Label() (string, error) { return "hall", nil }
func (t *thermostat) Reset()                 { t.target = 0 }
func (t *thermostat) Describe(prefix string) (string, error) {
	return prefix + "thermostat", nil
}
func (t *thermostat) Log(level int, parts ...string) error {
	t.logged = append(t.logged, parts...)
	return nil
}

func thermostatContract() *Contract {
	c := New[IThermostat]("")
	AddEvent(c, "TemperatureChanged", IThermostat.TemperatureChanged)
	AddProperty(c, "Target", IThermostat.Target, IThermostat.SetTarget)
	AddProperty[IThermostat, string](c, "Label", IThermostat.Label, nil)
	AddMethod[IThermostat](c, "Reset", IThermostat.Reset)
	AddMethod[IThermostat](c, "Describe", IThermostat.Describe)
	AddMethod[IThermostat](c, "Log", IThermostat.Log)
	return c
}

func TestNewDefaultsName(t *testing.T) {
	c := New[IThermostat]("")
	assert.Equal(t, "IThermostat", c.Name())
	assert.Equal(t, reflect.TypeOf((*IThermostat)(nil)).Elem(), c.Type())

	assert.Panics(t, func() {
		New[thermostat]("")
	})
}

func TestDuplicateMemberPanics(t *testing.T) {
	c := New[IThermostat]("")
	AddMethod[IThermostat](c, "Reset", IThermostat.Reset)
	assert.Panics(t, func() {
		AddProperty(c, "Reset", IThermostat.Target, nil)
	})
}

func TestMethodIdentifiers(t *testing.T) {
	c := thermostatContract()

	ids := []string{}
	for _, m := range c.Methods() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"Reset()", "Describe(string)", "Log(int,...string)"}, ids)

	m, ok := c.Method("Log")
	require.True(t, ok)
	assert.Equal(t, "Log(int,...string)", m.ID)

	m, ok = c.Method("Describe(string)")
	require.True(t, ok)
	assert.Equal(t, "Describe", m.Name)

	_, ok = c.Method("Missing")
	assert.False(t, ok)
}

func TestMethodCall(t *testing.T) {
	c := thermostatContract()
	target := &thermostat{target: 21}

	describe, _ := c.Method("Describe")
	res, err := describe.Call(target, []reflect.Value{reflect.ValueOf("hall ")})
	require.NoError(t, err)
	assert.Equal(t, "hall thermostat", res)

	reset, _ := c.Method("Reset")
	assert.Nil(t, reset.Result)
	res, err = reset.Call(target, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0.0, target.target)

	logm, _ := c.Method("Log")
	assert.True(t, logm.AcceptsArgs(1))
	assert.True(t, logm.AcceptsArgs(3))
	assert.False(t, logm.AcceptsArgs(0))

	typ, ok := logm.ParamType(2)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(""), typ)

	_, err = logm.Call(target, []reflect.Value{
		reflect.ValueOf(1),
		reflect.ValueOf("a"),
		reflect.ValueOf("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, target.logged)
}

func TestMethodSignatureValidation(t *testing.T) {
	c := New[IThermostat]("")
	assert.Panics(t, func() {
		AddMethod[IThermostat](c, "NotAFunc", 5)
	})
	assert.Panics(t, func() {
		AddMethod[IThermostat](c, "WrongReceiver", func(d IDisplay) {})
	})
	assert.Panics(t, func() {
		AddMethod[IThermostat](c, "TwoResults", func(x IThermostat) (int, int) { return 0, 0 })
	})
}

func TestPropertyAccess(t *testing.T) {
	c := thermostatContract()
	target := &thermostat{target: 19.5}

	prop, ok := c.Property("Target")
	require.True(t, ok)
	assert.True(t, prop.CanWrite())

	v, err := prop.Get(target)
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	require.NoError(t, prop.Set(target, 22.0))
	assert.Equal(t, 22.0, target.target)

	err = prop.Set(target, "warm")
	assert.Error(t, err)

	err = prop.Set(target, -1.0)
	assert.EqualError(t, err, "below zero")

	label, _ := c.Property("Label")
	assert.False(t, label.CanWrite())
	assert.Error(t, label.Set(target, "x"))
}

func TestEventSource(t *testing.T) {
	c := thermostatContract()
	target := &thermostat{}

	decl, ok := c.Event("TemperatureChanged")
	require.True(t, ok)
	assert.Equal(t, reflect.TypeOf(0.0), decl.ArgsType)

	src := decl.Source(target)
	require.NotNil(t, src)

	var got []any
	id := src.AddAny(func(args any) {
		got = append(got, args)
	})
	target.changed.Raise(3.5)
	require.NoError(t, src.RaiseAny(4.5))
	assert.Error(t, src.RaiseAny("hot"))
	assert.Equal(t, []any{3.5, 4.5}, got)

	assert.True(t, src.RemoveHandler(id))
	assert.False(t, src.RemoveHandler(id))
	assert.Equal(t, 0, src.HandlerCount())
}

func TestImplements(t *testing.T) {
	c := thermostatContract()
	assert.True(t, c.Implements(&thermostat{}))
	assert.False(t, c.Implements(thermostat{}))
	assert.False(t, c.Implements(nil))
}
