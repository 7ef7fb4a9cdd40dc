package hardware

import (
	"errors"
	"sync"
)

// RegisterWrite records one register write on a FakeExpander.
type RegisterWrite struct {
	Reg   byte
	Value byte
}

// FakeExpander emulates an MCP23017 wired to the key matrix. Pressed keys pull
// their row low while their column is driven low.
type FakeExpander struct {
	mu      sync.Mutex
	regs    [0x16]byte
	writes  []RegisterWrite
	pressed map[[2]int]bool
	closed  bool
	// Err, when set, is returned from every access.
	Err error
}

// NewFakeExpander returns an expander with no keys held.
func NewFakeExpander() *FakeExpander {
	return &FakeExpander{pressed: make(map[[2]int]bool)}
}

// Press holds the key at row, col.
func (f *FakeExpander) Press(row, col int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pressed[[2]int{row, col}] = true
}

// Release lets go of the key at row, col.
func (f *FakeExpander) Release(row, col int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pressed, [2]int{row, col})
}

// SetErr makes later accesses fail with err.
func (f *FakeExpander) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Register returns the last value written to reg.
func (f *FakeExpander) Register(reg byte) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.regs[reg]
}

// Writes returns a copy of every write so far.
func (f *FakeExpander) Writes() []RegisterWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RegisterWrite(nil), f.writes...)
}

// Closed reports whether Close was called.
func (f *FakeExpander) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// WriteRegister implements RegisterBus.
func (f *FakeExpander) WriteRegister(reg, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	if int(reg) >= len(f.regs) {
		return errors.New("register out of range")
	}
	f.regs[reg] = value
	f.writes = append(f.writes, RegisterWrite{Reg: reg, Value: value})
	return nil
}

// ReadRegister implements RegisterBus.
func (f *FakeExpander) ReadRegister(reg byte) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	if int(reg) >= len(f.regs) {
		return 0, errors.New("register out of range")
	}
	if reg != RegGPIOB {
		return f.regs[reg], nil
	}
	value := f.regs[RegGPIOB]&colMask | rowMask
	for col := 0; col < MatrixCols; col++ {
		if value&(1<<col) != 0 {
			continue
		}
		for row := 0; row < MatrixRows; row++ {
			if f.pressed[[2]int{row, col}] {
				value &^= 1 << (row + rowShift)
			}
		}
	}
	return value, nil
}

// Close implements RegisterBus.
func (f *FakeExpander) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FakeADC emulates an MCP3008 returning a settable reading on every channel.
type FakeADC struct {
	mu     sync.Mutex
	value  int
	last   []byte
	closed bool
	err    error
}

// Set changes the value returned by later transfers.
func (f *FakeADC) Set(value int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
}

// SetErr makes later transfers fail with err.
func (f *FakeADC) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// LastTx returns the most recent transmit buffer.
func (f *FakeADC) LastTx() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.last...)
}

// Transfer implements Transferer.
func (f *FakeADC) Transfer(tx []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.last = append([]byte(nil), tx...)
	return []byte{0xFF, 0xF8 | byte(f.value>>8)&3, byte(f.value)}, nil
}

// Close implements Transferer.
func (f *FakeADC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
