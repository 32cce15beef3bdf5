//go:build tinygo

package progpin

import "machine"

// MCU reads the program-enable input straight from a GPIO pin.
type MCU struct {
	pin machine.Pin
}

// NewMCU configures pin as a pulled-up input; the program-enable
// circuit pulls it low when asserted.
func NewMCU(pin machine.Pin) *MCU {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &MCU{pin: pin}
}

func (m *MCU) Asserted() bool {
	return !m.pin.Get()
}
