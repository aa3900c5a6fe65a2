package types

// ------------------------
// GPIO abstractions
// ------------------------

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIOPin is the minimal pin contract the drivers consume. Platform
// providers adapt machine pins (or simulators) to it.
type GPIOPin interface {
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(level bool)
	Get() bool
	Toggle()
}
