// Package sensor provides the Sensor Type Registry and the built-in
// handlers for each supported sensor kind.
//
// A handler owns the State payload of every entry of its type. Adding a
// sensor kind means implementing device.TypeHandler and registering it;
// the device registry, event router and health monitor stay untouched.
//
// # Built-in types
//
//	touch          programmableSwitchEvent, lastTouchAt
//	temperature    currentTemperature
//	humidity       currentTemperature, currentRelativeHumidity
//	proximity      objectDetected (true when the sensor reports PRESENT)
//	waterDetector  waterDetected (true when the sensor reports PRESENT)
//
// Every type except touch also exposes statusActive, statusFault and
// statusLowBattery; touch exposes statusLowBattery only.
//
// # Usage
//
//	types := sensor.NewDefaultRegistry()
//	reg := device.NewRegistry(types, repo, policy)
package sensor
