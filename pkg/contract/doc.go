// Package contract declares the shape of a bindable object: its events,
// properties and methods, and the string identifiers both sides of a binding
// use to refer to them.
//
// A contract is built once per Go interface type from method expressions:
//
//	var Thermostat = contract.New[IThermostat]("IThermostat")
//
//	func init() {
//	    contract.AddEvent(Thermostat, "TemperatureChanged", IThermostat.TemperatureChanged)
//	    contract.AddProperty(Thermostat, "Target", IThermostat.Target, IThermostat.SetTarget)
//	    contract.AddMethod(Thermostat, "Reset", IThermostat.Reset)
//	}
//
// The recipient uses the member table to reach into hosted objects, the
// sender uses the derived ObjectDescription to match remote bindings.
package contract
