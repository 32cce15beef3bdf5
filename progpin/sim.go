//go:build !tinygo

// Package progpin reports whether an operator has asserted the
// device's physical program-enable input.
package progpin

// Sim is a software-toggled ProgramPin for tests and cmd/busupdater-sim.
type Sim struct {
	asserted bool
}

// Set changes the simulated pin state.
func (s *Sim) Set(asserted bool) {
	s.asserted = asserted
}

func (s *Sim) Asserted() bool {
	return s.asserted
}
