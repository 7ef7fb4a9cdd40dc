package hardware

import "fmt"

// MCP3008MaxValue is the full-scale reading of the 10-bit converter.
const MCP3008MaxValue = 1023

// MCP3008 reads the 8-channel 10-bit ADC.
type MCP3008 struct {
	spi Transferer
}

// NewMCP3008 wraps an open SPI device.
func NewMCP3008(spi Transferer) *MCP3008 {
	return &MCP3008{spi: spi}
}

// Read samples a single-ended channel.
func (m *MCP3008) Read(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("mcp3008 channel %d out of range", channel)
	}
	rx, err := m.spi.Transfer([]byte{1, byte(8+channel) << 4, 0})
	if err != nil {
		return 0, fmt.Errorf("read channel %d: %w", channel, err)
	}
	if len(rx) < 3 {
		return 0, fmt.Errorf("read channel %d: short response of %d bytes", channel, len(rx))
	}
	return int(rx[1]&3)<<8 | int(rx[2]), nil
}

// Close releases the SPI device.
func (m *MCP3008) Close() error {
	if m == nil || m.spi == nil {
		return nil
	}
	return m.spi.Close()
}
