package xbee

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

// IOLine names a GPIO/analog-capable pin on the module.
type IOLine int

const (
	DIO0 IOLine = iota
	DIO1
	DIO2
	DIO3
	DIO4
	DIO5
	DIO6
	DIO7
	PWM0
	PWM1
)

type ioLineSpec struct {
	name           string
	configMnemonic string
	pwmMnemonic    string // empty if the line isn't PWM-capable
	digitalBit     int    // -1 if the line has no digital sample bit
	analogBit      int    // -1 if the line has no analog sample bit
}

var ioLineSpecs = map[IOLine]ioLineSpec{
	DIO0: {"DIO0", "D0", "", 0, 0},
	DIO1: {"DIO1", "D1", "", 1, 1},
	DIO2: {"DIO2", "D2", "", 2, 2},
	DIO3: {"DIO3", "D3", "", 3, 3},
	DIO4: {"DIO4", "D4", "", 4, -1},
	DIO5: {"DIO5", "D5", "", 5, -1},
	DIO6: {"DIO6", "D6", "", 6, -1},
	DIO7: {"DIO7", "D7", "", 7, -1},
	PWM0: {"PWM0", "P0", "M0", -1, -1},
	PWM1: {"PWM1", "P1", "M1", -1, -1},
}

func (l IOLine) spec() (ioLineSpec, bool) {
	s, ok := ioLineSpecs[l]
	return s, ok
}

func (l IOLine) String() string {
	if s, ok := l.spec(); ok {
		return s.name
	}
	return "IOLine(?)"
}

// PWMCapable reports whether the line has a dedicated duty-cycle mnemonic.
func (l IOLine) PWMCapable() bool {
	s, ok := l.spec()
	return ok && s.pwmMnemonic != ""
}

// AnalogCapable reports whether the line has an analog sample bit.
func (l IOLine) AnalogCapable() bool {
	s, ok := l.spec()
	return ok && s.analogBit >= 0
}

func lineForDigitalBit(bit int) (IOLine, bool) {
	for line, s := range ioLineSpecs {
		if s.digitalBit == bit {
			return line, true
		}
	}
	return 0, false
}

func lineForAnalogBit(bit int) (IOLine, bool) {
	for line, s := range ioLineSpecs {
		if s.analogBit == bit {
			return line, true
		}
	}
	return 0, false
}

// IOMode is a D-command configuration value for a line.
type IOMode byte

const (
	IOModeDisabled          IOMode = 0x00
	IOModeAnalogInput       IOMode = 0x02
	IOModeDigitalInput      IOMode = 0x03
	IOModeDigitalOutputLow  IOMode = 0x04
	IOModeDigitalOutputHigh IOMode = 0x05
)

func validModeForLine(line IOLine, mode IOMode) bool {
	if mode == IOModeAnalogInput && !line.AnalogCapable() {
		return false
	}
	return true
}

// DigitalValue is a sampled or commanded digital line state.
type DigitalValue int

const (
	Low DigitalValue = iota
	High
)

func (v DigitalValue) String() string {
	if v == High {
		return "high"
	}
	return "low"
}

// IOSample is a decoded IS-frame snapshot of the configured digital and
// analog lines.
type IOSample struct {
	DigitalMask uint16
	AnalogMask  byte
	Digital     map[IOLine]DigitalValue
	Analog      map[IOLine]uint16
}

// decodeIOSample parses an IS response/async-IO-frame value: sample count
// (1 byte), digital channel mask (2 bytes), analog channel mask (1 byte),
// then digital values (2 bytes, present only if the digital mask is
// non-zero) followed by one 2-byte 10-bit-right-justified value per set
// analog-mask bit. This layout is this package's own documented
// assumption (see DESIGN.md); it was not present in the retrieved
// original source.
func decodeIOSample(data []byte) (*IOSample, error) {
	if len(data) < 4 {
		return nil, newErr(ErrOpNotSupported, "decode_io_sample", "sample too short")
	}
	idx := 1 // skip sample count
	digitalMask := binary.BigEndian.Uint16(data[idx : idx+2])
	idx += 2
	analogMask := data[idx]
	idx++

	sample := &IOSample{
		DigitalMask: digitalMask,
		AnalogMask:  analogMask,
		Digital:     make(map[IOLine]DigitalValue),
		Analog:      make(map[IOLine]uint16),
	}

	if digitalMask != 0 {
		if idx+2 > len(data) {
			return nil, newErr(ErrOpNotSupported, "decode_io_sample", "truncated digital values")
		}
		values := binary.BigEndian.Uint16(data[idx : idx+2])
		idx += 2
		for bit := 0; bit < 16; bit++ {
			if digitalMask&(1<<uint(bit)) == 0 {
				continue
			}
			line, ok := lineForDigitalBit(bit)
			if !ok {
				continue
			}
			if values&(1<<uint(bit)) != 0 {
				sample.Digital[line] = High
			} else {
				sample.Digital[line] = Low
			}
		}
	}

	for bit := 0; bit < 8; bit++ {
		if analogMask&(1<<uint(bit)) == 0 {
			continue
		}
		if idx+2 > len(data) {
			return nil, newErr(ErrOpNotSupported, "decode_io_sample", "truncated analog values")
		}
		v := binary.BigEndian.Uint16(data[idx:idx+2]) & 0x03FF
		idx += 2
		if line, ok := lineForAnalogBit(bit); ok {
			sample.Analog[line] = v
		}
	}

	return sample, nil
}

// atSender is implemented by LocalDevice and RemoteDevice so the shared IO
// operations below work against either without an inheritance hierarchy.
type atSender interface {
	sendAT(ctx context.Context, mnemonic string, param []byte) (*ATCommandResponse, error)
	protocolHint() Protocol
	beginIOSampleWait() (*ioSampleWait, error)
}

// ioSampleWait is a listener registration opened before an IS command is
// sent, so an async IO-sample frame that arrives the instant the command's
// own OK response does can't be dropped for lack of a subscriber.
type ioSampleWait struct {
	ch      <-chan Frame
	cancel  func()
	timeout time.Duration
}

func (w *ioSampleWait) wait(ctx context.Context) (*IOSample, error) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	for {
		select {
		case f := <-w.ch:
			if isAsyncIOFrame(f.Type) {
				return decodeIOSample(f.Payload)
			}
		case <-timer.C:
			return nil, newErr(ErrTimeout, "await_io_sample", "no async IO frame within receive timeout")
		case <-ctx.Done():
			return nil, &Error{Kind: ErrTimeout, Op: "await_io_sample", Message: "cancelled", Cause: ctx.Err()}
		}
	}
}

func checkATStatus(op string, resp *ATCommandResponse) error {
	if resp.Status != ATStatusOK {
		return atErr(op, resp.Status)
	}
	return nil
}

func setIOConfig(ctx context.Context, d atSender, line IOLine, mode IOMode) error {
	spec, ok := line.spec()
	if !ok {
		return newErr(ErrInvalidArg, "set_io_config", "unknown IO line")
	}
	if !validModeForLine(line, mode) {
		return newErr(ErrInvalidArg, "set_io_config", "mode not valid for this line")
	}
	resp, err := d.sendAT(ctx, spec.configMnemonic, []byte{byte(mode)})
	if err != nil {
		return err
	}
	return checkATStatus("set_io_config", resp)
}

func getIOConfig(ctx context.Context, d atSender, line IOLine) (IOMode, error) {
	spec, ok := line.spec()
	if !ok {
		return 0, newErr(ErrInvalidArg, "get_io_config", "unknown IO line")
	}
	resp, err := d.sendAT(ctx, spec.configMnemonic, nil)
	if err != nil {
		return 0, err
	}
	if err := checkATStatus("get_io_config", resp); err != nil {
		return 0, err
	}
	if len(resp.Value) == 0 {
		return 0, newErr(ErrOpNotSupported, "get_io_config", "empty mode response")
	}
	mode := IOMode(resp.Value[len(resp.Value)-1])
	if !validModeForLine(line, mode) {
		return 0, newErr(ErrOpNotSupported, "get_io_config", "returned mode invalid for this line")
	}
	return mode, nil
}

// setDIO reuses the line's configuration mnemonic to push a digital
// output value — the original source does the same rather than defining
// a dedicated "set output" command. Whether this is intended for every
// line or only those whose configure mnemonic doubles as a write is an
// open question (see DESIGN.md); this port preserves that behavior as-is.
func setDIO(ctx context.Context, d atSender, line IOLine, v DigitalValue) error {
	mode := IOModeDigitalOutputLow
	if v == High {
		mode = IOModeDigitalOutputHigh
	}
	spec, ok := line.spec()
	if !ok {
		return newErr(ErrInvalidArg, "set_dio", "unknown IO line")
	}
	resp, err := d.sendAT(ctx, spec.configMnemonic, []byte{byte(mode)})
	if err != nil {
		return err
	}
	return checkATStatus("set_dio", resp)
}

func getDIO(ctx context.Context, d atSender, line IOLine) (DigitalValue, error) {
	sample, err := getIOSample(ctx, d)
	if err != nil {
		return 0, err
	}
	v, ok := sample.Digital[line]
	if !ok {
		return 0, newErr(ErrOpNotSupported, "get_dio", "no digital value for line")
	}
	return v, nil
}

func getADC(ctx context.Context, d atSender, line IOLine) (uint16, error) {
	if !line.AnalogCapable() {
		return 0, newErr(ErrOpNotSupported, "get_adc", "line is not analog-capable")
	}
	sample, err := getIOSample(ctx, d)
	if err != nil {
		return 0, err
	}
	v, ok := sample.Analog[line]
	if !ok {
		return 0, newErr(ErrOpNotSupported, "get_adc", "no analog value for line")
	}
	return v, nil
}

func setPWMDuty(ctx context.Context, d atSender, line IOLine, pct float64) error {
	spec, ok := line.spec()
	if !ok || spec.pwmMnemonic == "" {
		return newErr(ErrInvalidArg, "set_pwm_duty", "line is not PWM-capable")
	}
	if pct < 0 || pct > 100 {
		return newErr(ErrInvalidArg, "set_pwm_duty", "percentage out of range [0,100]")
	}
	raw := uint16(math.Round(pct * 1023 / 100))
	param := []byte{byte(raw >> 8), byte(raw)}
	resp, err := d.sendAT(ctx, spec.pwmMnemonic, param)
	if err != nil {
		return err
	}
	return checkATStatus("set_pwm_duty", resp)
}

func getPWMDuty(ctx context.Context, d atSender, line IOLine) (float64, error) {
	spec, ok := line.spec()
	if !ok || spec.pwmMnemonic == "" {
		return 0, newErr(ErrInvalidArg, "get_pwm_duty", "line is not PWM-capable")
	}
	resp, err := d.sendAT(ctx, spec.pwmMnemonic, nil)
	if err != nil {
		return 0, err
	}
	if err := checkATStatus("get_pwm_duty", resp); err != nil {
		return 0, err
	}
	if len(resp.Value) == 0 {
		return 0, newErr(ErrOpNotSupported, "get_pwm_duty", "empty duty response")
	}
	var raw uint64
	for _, b := range resp.Value {
		raw = raw<<8 | uint64(b)
	}
	pct := (float64(raw) * 100 / 1023)
	return math.Round(pct*100) / 100, nil
}

// getIOSample sends IS and decodes its response value directly, except on
// RAW_802_15_4: there the OK response to IS carries no payload, and the
// actual sample arrives moments later as an unsolicited async IO frame.
// The listener for that frame is opened before IS is even sent, so a
// frame delivered in the gap between the OK response and a
// post-hoc-installed listener can never be missed.
func getIOSample(ctx context.Context, d atSender) (*IOSample, error) {
	var wait *ioSampleWait
	if d.protocolHint() == ProtocolRaw80215_4 {
		w, err := d.beginIOSampleWait()
		if err != nil {
			return nil, err
		}
		wait = w
		defer wait.cancel()
	}

	resp, err := d.sendAT(ctx, "IS", nil)
	if err != nil {
		return nil, err
	}
	if err := checkATStatus("get_io_sample", resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		if wait != nil {
			return wait.wait(ctx)
		}
		return nil, newErr(ErrOpNotSupported, "get_io_sample", "empty IS response")
	}
	return decodeIOSample(resp.Value)
}
