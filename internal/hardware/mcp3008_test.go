package hardware

import (
	"bytes"
	"errors"
	"testing"
)

func TestMCP3008Read(t *testing.T) {
	adc := &FakeADC{}
	chip := NewMCP3008(adc)
	for _, value := range []int{0, 1, 255, 256, 700, 1023} {
		adc.Set(value)
		got, err := chip.Read(0)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got != value {
			t.Fatalf("Read() = %d, want %d", got, value)
		}
	}
	if _, err := chip.Read(5); err != nil {
		t.Fatalf("Read(5): %v", err)
	}
	if !bytes.Equal(adc.LastTx(), []byte{1, 0xD0, 0}) {
		t.Fatalf("tx = %#v", adc.LastTx())
	}
}

func TestMCP3008ReadErrors(t *testing.T) {
	adc := &FakeADC{}
	chip := NewMCP3008(adc)
	if _, err := chip.Read(8); err == nil {
		t.Fatal("expected range error")
	}
	adc.SetErr(errors.New("spi fault"))
	if _, err := chip.Read(0); err == nil {
		t.Fatal("expected transfer error")
	}
}

func TestOpenMissingDevices(t *testing.T) {
	if _, err := OpenI2C(250, 0x20); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("OpenI2C error = %v, want ErrNotPresent", err)
	}
	if _, err := OpenSPI(250, 9, 1000); !errors.Is(err, ErrNotPresent) {
		t.Fatalf("OpenSPI error = %v, want ErrNotPresent", err)
	}
}
