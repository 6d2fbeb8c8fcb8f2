package xbee

import (
	"context"
	"math"
	"testing"
	"time"
)

type fakeATSender struct {
	lastParam []byte
	proto     Protocol
}

func (f *fakeATSender) sendAT(ctx context.Context, mnemonic string, param []byte) (*ATCommandResponse, error) {
	if param != nil {
		f.lastParam = param
	}
	return &ATCommandResponse{Mnemonic: mnemonic, Status: ATStatusOK, Value: f.lastParam}, nil
}

func (f *fakeATSender) protocolHint() Protocol { return f.proto }

func (f *fakeATSender) beginIOSampleWait() (*ioSampleWait, error) {
	ch := make(chan Frame)
	return &ioSampleWait{ch: ch, cancel: func() {}, timeout: time.Millisecond}, nil
}

func TestPWMDutyCycleRoundTrip(t *testing.T) {
	for _, pct := range []float64{0, 1, 50, 62.5, 99.5, 100} {
		sender := &fakeATSender{}
		if err := setPWMDuty(context.Background(), sender, PWM0, pct); err != nil {
			t.Fatalf("setPWMDuty(%v): %v", pct, err)
		}
		got, err := getPWMDuty(context.Background(), sender, PWM0)
		if err != nil {
			t.Fatalf("getPWMDuty(%v): %v", pct, err)
		}
		if diff := math.Abs(got - pct); diff > 100.0/1023.0+0.01 {
			t.Errorf("round trip for %v: got %v, diff %v exceeds tolerance", pct, got, diff)
		}
	}
}

func TestSetPWMDutyRejectsNonPWMLine(t *testing.T) {
	sender := &fakeATSender{}
	if err := setPWMDuty(context.Background(), sender, DIO0, 50); err == nil {
		t.Fatal("expected an error for a non-PWM-capable line")
	}
}

func TestSetPWMDutyRejectsOutOfRangePercentage(t *testing.T) {
	sender := &fakeATSender{}
	if err := setPWMDuty(context.Background(), sender, PWM0, 150); err == nil {
		t.Fatal("expected an error for an out-of-range percentage")
	}
}

func TestDecodeIOSampleDigitalAndAnalog(t *testing.T) {
	// DIO0 high, DIO1 low, AD2 = 512.
	data := []byte{
		0x01,       // sample count
		0x00, 0x03, // digital mask: bits 0,1
		0x04,       // analog mask: bit 2
		0x00, 0x01, // digital values: bit0 set
		0x02, 0x00, // AD2 = 0x0200 = 512
	}
	sample, err := decodeIOSample(data)
	if err != nil {
		t.Fatalf("decodeIOSample: %v", err)
	}
	if sample.Digital[DIO0] != High {
		t.Errorf("DIO0: got %v, want High", sample.Digital[DIO0])
	}
	if sample.Digital[DIO1] != Low {
		t.Errorf("DIO1: got %v, want Low", sample.Digital[DIO1])
	}
	if sample.Analog[DIO2] != 512 {
		t.Errorf("DIO2 analog: got %v, want 512", sample.Analog[DIO2])
	}
}

func TestGetADCRejectsNonAnalogLine(t *testing.T) {
	sender := &fakeATSender{}
	if _, err := getADC(context.Background(), sender, DIO4); err == nil {
		t.Fatal("expected an error for a non-analog-capable line")
	}
}
