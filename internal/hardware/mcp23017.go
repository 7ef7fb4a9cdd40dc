package hardware

import "fmt"

// MCP23017 register addresses (IOCON.BANK = 0).
const (
	RegIODIRA byte = 0x00
	RegIODIRB byte = 0x01
	RegGPPUA  byte = 0x0C
	RegGPPUB  byte = 0x0D
	RegGPIOA  byte = 0x12
	RegGPIOB  byte = 0x13
)

// Matrix geometry: columns are driven on GPB0..1, rows are read on GPB2..5.
const (
	MatrixRows = 4
	MatrixCols = 2

	colMask  byte = 0x03
	rowMask  byte = 0x3C
	rowShift      = 2
)

// MatrixState holds one bit per key, 1 when released (pull-up) and 0 when
// pressed.
type MatrixState [MatrixRows][MatrixCols]byte

// ReleasedMatrix is the state with no keys held.
func ReleasedMatrix() MatrixState {
	var s MatrixState
	for r := range s {
		for c := range s[r] {
			s[r][c] = 1
		}
	}
	return s
}

// MCP23017 drives a 16-bit I/O expander.
type MCP23017 struct {
	bus RegisterBus
}

// NewMCP23017 wraps an open register bus.
func NewMCP23017(bus RegisterBus) *MCP23017 {
	return &MCP23017{bus: bus}
}

// ConfigureMatrix sets port A as LED outputs and port B as the key matrix:
// GPB2..5 inputs with pull-ups, GPB0..1 column outputs.
func (m *MCP23017) ConfigureMatrix() error {
	for _, w := range []struct{ reg, value byte }{
		{RegIODIRB, rowMask},
		{RegGPPUB, rowMask},
		{RegIODIRA, 0x00},
	} {
		if err := m.bus.WriteRegister(w.reg, w.value); err != nil {
			return fmt.Errorf("configure matrix: %w", err)
		}
	}
	return nil
}

// ConfigureOutputs sets every port A pin as an output.
func (m *MCP23017) ConfigureOutputs() error {
	if err := m.bus.WriteRegister(RegIODIRA, 0x00); err != nil {
		return fmt.Errorf("configure outputs: %w", err)
	}
	return nil
}

// SetLEDs writes mask to port A.
func (m *MCP23017) SetLEDs(mask byte) error {
	if err := m.bus.WriteRegister(RegGPIOA, mask); err != nil {
		return fmt.Errorf("set leds %#08b: %w", mask, err)
	}
	return nil
}

// ScanMatrix drives each column low in turn and samples the rows.
func (m *MCP23017) ScanMatrix() (MatrixState, error) {
	var state MatrixState
	for col := 0; col < MatrixCols; col++ {
		drive := ^byte(1<<col) & colMask
		if err := m.bus.WriteRegister(RegGPIOB, drive); err != nil {
			return state, fmt.Errorf("drive column %d: %w", col, err)
		}
		value, err := m.bus.ReadRegister(RegGPIOB)
		if err != nil {
			return state, fmt.Errorf("read rows for column %d: %w", col, err)
		}
		rows := value & rowMask
		for row := 0; row < MatrixRows; row++ {
			state[row][col] = (rows >> (row + rowShift)) & 1
		}
	}
	return state, nil
}

// Close releases the underlying bus.
func (m *MCP23017) Close() error {
	if m == nil || m.bus == nil {
		return nil
	}
	return m.bus.Close()
}
