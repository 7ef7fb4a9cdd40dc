package hardware

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers from linux/spi/spidev.h.
const (
	spiIOCWrMode        = 0x40016b01
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCWrMaxSpeedHz  = 0x40046b04
	spiIOCMessage1      = 0x40206b00
)

// Transferer performs full-duplex SPI transfers.
type Transferer interface {
	Transfer(tx []byte) ([]byte, error)
	Close() error
}

// spiIOCTransfer mirrors struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// SPIDevice is an open /dev/spidevB.D node.
type SPIDevice struct {
	path    string
	speedHz uint32

	mu   sync.Mutex
	file *os.File
}

// SPIPath returns the device node for a bus and chip select.
func SPIPath(bus, device int) string {
	return fmt.Sprintf("/dev/spidev%d.%d", bus, device)
}

// OpenSPI opens a spidev node in mode 0 with 8-bit words.
func OpenSPI(bus, device, speedHz int) (*SPIDevice, error) {
	path := SPIPath(bus, device)
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrNotPresent)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dev := &SPIDevice{path: path, speedHz: uint32(speedHz), file: file}
	mode, bits, speed := uint8(0), uint8(8), uint32(speedHz)
	for _, setting := range []struct {
		name string
		req  uintptr
		arg  unsafe.Pointer
	}{
		{"mode", spiIOCWrMode, unsafe.Pointer(&mode)},
		{"bits per word", spiIOCWrBitsPerWord, unsafe.Pointer(&bits)},
		{"max speed", spiIOCWrMaxSpeedHz, unsafe.Pointer(&speed)},
	} {
		if err := dev.ioctl(setting.req, setting.arg); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("set spi %s on %s: %w", setting.name, path, err)
		}
	}
	return dev, nil
}

// Transfer clocks tx out and returns the bytes read back.
func (d *SPIDevice) Transfer(tx []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil, fmt.Errorf("transfer %s: %w", d.path, os.ErrClosed)
	}
	if len(tx) == 0 {
		return nil, nil
	}
	rx := make([]byte, len(tx))
	xfer := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     d.speedHz,
		bitsPerWord: 8,
	}
	err := d.ioctl(spiIOCMessage1, unsafe.Pointer(&xfer))
	runtime.KeepAlive(tx)
	runtime.KeepAlive(rx)
	if err != nil {
		return nil, fmt.Errorf("transfer %s: %w", d.path, err)
	}
	return rx, nil
}

// Close releases the device node. It is safe to call more than once.
func (d *SPIDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *SPIDevice) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
