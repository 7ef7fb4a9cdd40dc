package hardware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrNotPresent reports that a bus device node does not exist.
var ErrNotPresent = errors.New("hardware not present")

// i2cSlave is the I2C_SLAVE ioctl from linux/i2c-dev.h.
const i2cSlave = 0x0703

// RegisterBus reads and writes 8-bit registers on one device.
type RegisterBus interface {
	WriteRegister(reg, value byte) error
	ReadRegister(reg byte) (byte, error)
	Close() error
}

// I2CDevice is a device bound to one address on /dev/i2c-N.
type I2CDevice struct {
	path string
	addr int

	mu   sync.Mutex
	file *os.File
}

// I2CPath returns the device node for an I2C bus number.
func I2CPath(bus int) string {
	return fmt.Sprintf("/dev/i2c-%d", bus)
}

// OpenI2C opens bus and selects addr for all later transfers.
func OpenI2C(bus, addr int) (*I2CDevice, error) {
	path := I2CPath(bus)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotPresent)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(int(file.Fd()), i2cSlave, addr); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("select i2c address %#x on %s: %w", addr, path, err)
	}
	return &I2CDevice{path: path, addr: addr, file: file}, nil
}

// WriteRegister writes value into reg.
func (d *I2CDevice) WriteRegister(reg, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return fmt.Errorf("write %s@%#x: %w", d.path, d.addr, os.ErrClosed)
	}
	if _, err := d.file.Write([]byte{reg, value}); err != nil {
		return fmt.Errorf("write %s@%#x reg %#x: %w", d.path, d.addr, reg, err)
	}
	return nil
}

// ReadRegister returns the value of reg.
func (d *I2CDevice) ReadRegister(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return 0, fmt.Errorf("read %s@%#x: %w", d.path, d.addr, os.ErrClosed)
	}
	if _, err := d.file.Write([]byte{reg}); err != nil {
		return 0, fmt.Errorf("select %s@%#x reg %#x: %w", d.path, d.addr, reg, err)
	}
	buf := make([]byte, 1)
	if _, err := d.file.Read(buf); err != nil {
		return 0, fmt.Errorf("read %s@%#x reg %#x: %w", d.path, d.addr, reg, err)
	}
	return buf[0], nil
}

// Close releases the device node. It is safe to call more than once.
func (d *I2CDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
