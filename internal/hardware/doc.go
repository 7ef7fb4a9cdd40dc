// Package hardware provides register-level access to the control surface
// chips: MCP23017 I/O expanders on I2C (button matrix, LEDs, startup
// indicator) and the MCP3008 ADC on SPI (volume knob).
//
// Linux character devices are driven with ioctls from golang.org/x/sys/unix.
// Chip drivers only see the RegisterBus and Transferer interfaces, so tests
// and hosts without the hardware substitute the fakes in this package.
package hardware
