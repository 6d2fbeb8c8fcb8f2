package xbee

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DeviceState is a LocalDevice's lifecycle state.
type DeviceState int

const (
	StateNew DeviceState = iota
	StateConnected
	StateInitialized
	StateClosed
)

func (s DeviceState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateConnected:
		return "CONNECTED"
	case StateInitialized:
		return "INITIALIZED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// LocalDevice is the facade for an XBee module attached via a transport
// this process owns. It maintains cached identity and operating mode and
// exposes the synchronous command surface built on the Correlator.
type LocalDevice struct {
	mu    sync.Mutex
	state DeviceState

	transport Transport
	escaped   bool
	cfg       DeviceConfig
	logger    *slog.Logger

	registry   *ListenerRegistry
	reader     *Reader
	correlator *Correlator

	identity DeviceIdentity
	events   *EventBus
}

// NewLocalDevice creates a LocalDevice in the NEW state. Call Open before
// issuing any command.
func NewLocalDevice(transport Transport, cfg DeviceConfig, logger *slog.Logger) *LocalDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalDevice{transport: transport, cfg: cfg, logger: logger, state: StateNew, events: NewEventBus()}
}

// Events returns the device's event bus, publishing EventIdentityUpdated
// and EventIOSample notifications. Subscribers must not block.
func (d *LocalDevice) Events() *EventBus {
	return d.events
}

// ListenerRegistry exposes the device's frame listener registry so a
// frame monitor can subscribe globally without going through the
// command surface.
func (d *LocalDevice) ListenerRegistry() *ListenerRegistry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registry
}

// Open opens the transport, starts the Reader and Correlator, and moves
// the device to CONNECTED. Reopening after Close resets to CONNECTED
// without discarding cached identity.
func (d *LocalDevice) Open(ctx context.Context) error {
	mode := ParseOperatingMode(d.cfg.OperatingMode)
	if !mode.SupportsFrames() {
		return newErr(ErrInvalidOperatingMode, "open", "operating mode does not support the frame protocol")
	}

	d.mu.Lock()
	if d.state == StateConnected || d.state == StateInitialized {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.transport.Open(); err != nil {
		return wrapIOErr("open", err)
	}

	escaped := mode == ModeAPIEscape
	registry := NewListenerRegistry(d.logger)
	reader := NewReader(d.transport, escaped, registry, d.logger)
	correlator := NewCorrelator(d.transport, escaped, registry, reader, d.cfg.ReceiveTimeout(), d.logger)

	go reader.Run()
	correlator.Start()

	d.mu.Lock()
	d.escaped = escaped
	d.registry = registry
	d.reader = reader
	d.correlator = correlator
	d.state = StateConnected
	d.mu.Unlock()

	d.logger.Info("device opened", "port_escaped", escaped)
	return nil
}

// Close stops the correlator and closes the transport. Idempotent.
func (d *LocalDevice) Close() error {
	d.mu.Lock()
	if d.state == StateClosed || d.state == StateNew {
		d.state = StateClosed
		d.mu.Unlock()
		return nil
	}
	correlator := d.correlator
	d.state = StateClosed
	d.mu.Unlock()

	if correlator != nil {
		correlator.Close()
	}
	if err := d.transport.Close(); err != nil {
		return wrapIOErr("close", err)
	}
	return nil
}

// IsOpen reports whether the device is connected or initialized and its
// transport is currently open.
func (d *LocalDevice) IsOpen() bool {
	d.mu.Lock()
	st := d.state
	d.mu.Unlock()
	return (st == StateConnected || st == StateInitialized) && d.transport.IsOpen()
}

// State returns the device's current lifecycle state.
func (d *LocalDevice) State() DeviceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Identity returns a copy of the device's cached identity.
func (d *LocalDevice) Identity() DeviceIdentity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity
}

func (d *LocalDevice) requireReady() error {
	d.mu.Lock()
	st := d.state
	d.mu.Unlock()
	if st != StateInitialized {
		return newErr(ErrInterfaceNotOpen, "command", "device not initialized")
	}
	if !d.transport.IsOpen() {
		return newErr(ErrInterfaceNotOpen, "command", "transport not open")
	}
	return nil
}

// sendAT implements atSender: it is usable both during Initialize (before
// the device reaches INITIALIZED) and by every command once ready.
func (d *LocalDevice) sendAT(ctx context.Context, mnemonic string, param []byte) (*ATCommandResponse, error) {
	if len(mnemonic) != 2 {
		return nil, newErr(ErrInvalidArg, "at", "mnemonic must be exactly 2 bytes")
	}
	d.mu.Lock()
	correlator := d.correlator
	d.mu.Unlock()
	if correlator == nil {
		return nil, newErr(ErrInterfaceNotOpen, "at", "device not open")
	}
	frame, err := correlator.SendSync(ctx, FrameTypeATCommand, buildATCommandBody(mnemonic, param), mnemonic)
	if err != nil {
		return nil, err
	}
	return parseATCommandResponse(frame.Body())
}

func (d *LocalDevice) protocolHint() Protocol {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity.Protocol
}

// beginIOSampleWait opens a global listener for the RAW_802_15_4
// async-IO-frame case before the IS command that triggers it is sent, so
// the frame can't arrive and be dropped before anything is listening.
func (d *LocalDevice) beginIOSampleWait() (*ioSampleWait, error) {
	d.mu.Lock()
	registry := d.registry
	d.mu.Unlock()
	if registry == nil {
		return nil, newErr(ErrInterfaceNotOpen, "await_io_sample", "device not open")
	}

	id, ch := registry.Subscribe()
	return &ioSampleWait{ch: ch, cancel: func() { registry.Unsubscribe(id) }, timeout: d.cfg.ReceiveTimeout()}, nil
}

// Initialize fetches SH, SL, NI, HV, VR for every field not already
// cached, and derives the protocol from hardware+firmware version. A
// re-initialize overwrites only fields still empty.
func (d *LocalDevice) Initialize(ctx context.Context) error {
	d.mu.Lock()
	st := d.state
	d.mu.Unlock()
	if st != StateConnected && st != StateInitialized {
		return newErr(ErrInterfaceNotOpen, "initialize", "device not connected")
	}

	fetch := func(mnemonic string) ([]byte, error) {
		resp, err := d.sendAT(ctx, mnemonic, nil)
		if err != nil {
			return nil, err
		}
		if err := checkATStatus("initialize", resp); err != nil {
			return nil, err
		}
		if len(resp.Value) == 0 {
			return nil, newErr(ErrOpNotSupported, "initialize", "empty "+mnemonic+" response")
		}
		return resp.Value, nil
	}

	d.mu.Lock()
	haveAddr64, haveNodeID, haveHW, haveFW := d.identity.addr64Set, d.identity.NodeID != "", d.identity.hwSet, d.identity.fwSet
	d.mu.Unlock()

	if !haveAddr64 {
		sh, err := fetch("SH")
		if err != nil {
			return err
		}
		sl, err := fetch("SL")
		if err != nil {
			return err
		}
		addr64, err := addr64FromSHSL(sh, sl)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.identity.Addr64, d.identity.addr64Set = addr64, true
		d.mu.Unlock()
	}

	if !haveNodeID {
		ni, err := fetch("NI")
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.identity.NodeID = string(ni)
		d.mu.Unlock()
	}

	if !haveHW {
		hv, err := fetch("HV")
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.identity.HardwareVersion, d.identity.hwSet = HardwareVersion(hv[len(hv)-1]), true
		d.mu.Unlock()
	}

	if !haveFW {
		vr, err := fetch("VR")
		if err != nil {
			return err
		}
		fw, err := firmwareVersionString(vr)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.identity.FirmwareVersion, d.identity.fwSet = fw, true
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.identity.Protocol = protocolFromIdentity(d.identity.HardwareVersion, d.identity.FirmwareVersion)
	d.state = StateInitialized
	identity := d.identity
	d.mu.Unlock()

	d.events.Emit(DeviceEvent{Type: EventIdentityUpdated, Addr64: identity.Addr64, Identity: identity})
	return nil
}

// GetParameter issues an AT get for mnemonic and returns its value bytes.
func (d *LocalDevice) GetParameter(ctx context.Context, mnemonic string) ([]byte, error) {
	if len(mnemonic) != 2 {
		return nil, newErr(ErrInvalidArg, "get_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := d.requireReady(); err != nil {
		return nil, err
	}
	resp, err := d.sendAT(ctx, mnemonic, nil)
	if err != nil {
		return nil, err
	}
	if err := checkATStatus("get_parameter", resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// SetParameter issues an AT set for mnemonic with value and returns once
// the module acknowledges OK.
func (d *LocalDevice) SetParameter(ctx context.Context, mnemonic string, value []byte) error {
	if value == nil {
		return newErr(ErrNullArg, "set_parameter", "value must not be nil")
	}
	if len(mnemonic) != 2 {
		return newErr(ErrInvalidArg, "set_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := d.requireReady(); err != nil {
		return err
	}
	resp, err := d.sendAT(ctx, mnemonic, value)
	if err != nil {
		return err
	}
	return checkATStatus("set_parameter", resp)
}

// ExecuteParameter issues a valueless AT command and returns once OK.
func (d *LocalDevice) ExecuteParameter(ctx context.Context, mnemonic string) error {
	if len(mnemonic) != 2 {
		return newErr(ErrInvalidArg, "execute_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := d.requireReady(); err != nil {
		return err
	}
	resp, err := d.sendAT(ctx, mnemonic, nil)
	if err != nil {
		return err
	}
	return checkATStatus("execute_parameter", resp)
}

func (d *LocalDevice) SetIOConfig(ctx context.Context, line IOLine, mode IOMode) error {
	if err := d.requireReady(); err != nil {
		return err
	}
	return setIOConfig(ctx, d, line, mode)
}

func (d *LocalDevice) GetIOConfig(ctx context.Context, line IOLine) (IOMode, error) {
	if err := d.requireReady(); err != nil {
		return 0, err
	}
	return getIOConfig(ctx, d, line)
}

func (d *LocalDevice) SetDIO(ctx context.Context, line IOLine, v DigitalValue) error {
	if err := d.requireReady(); err != nil {
		return err
	}
	return setDIO(ctx, d, line, v)
}

func (d *LocalDevice) GetDIO(ctx context.Context, line IOLine) (DigitalValue, error) {
	if err := d.requireReady(); err != nil {
		return 0, err
	}
	return getDIO(ctx, d, line)
}

func (d *LocalDevice) SetPWMDuty(ctx context.Context, line IOLine, pct float64) error {
	if err := d.requireReady(); err != nil {
		return err
	}
	return setPWMDuty(ctx, d, line, pct)
}

func (d *LocalDevice) GetPWMDuty(ctx context.Context, line IOLine) (float64, error) {
	if err := d.requireReady(); err != nil {
		return 0, err
	}
	return getPWMDuty(ctx, d, line)
}

func (d *LocalDevice) GetADC(ctx context.Context, line IOLine) (uint16, error) {
	if err := d.requireReady(); err != nil {
		return 0, err
	}
	return getADC(ctx, d, line)
}

func (d *LocalDevice) GetIOSample(ctx context.Context) (*IOSample, error) {
	if err := d.requireReady(); err != nil {
		return nil, err
	}
	sample, err := getIOSample(ctx, d)
	if err != nil {
		return nil, err
	}
	d.events.Emit(DeviceEvent{Type: EventIOSample, Addr64: d.Identity().Addr64, Sample: sample})
	return sample, nil
}

// Reset sends the AT FR command and waits for the module's async modem
// status frame to confirm the reset completed, since FR's OK only
// acknowledges receipt.
func (d *LocalDevice) Reset(ctx context.Context) error {
	if err := d.requireReady(); err != nil {
		return err
	}
	resp, err := d.sendAT(ctx, "FR", nil)
	if err != nil {
		return err
	}
	if err := checkATStatus("reset", resp); err != nil {
		return err
	}

	d.mu.Lock()
	registry := d.registry
	d.mu.Unlock()

	id, ch := registry.Subscribe()
	defer registry.Unsubscribe(id)

	timer := time.NewTimer(d.cfg.ReceiveTimeout())
	defer timer.Stop()

	for {
		select {
		case f := <-ch:
			if f.Type == FrameTypeModemStatus {
				return nil
			}
		case <-timer.C:
			return newErr(ErrTimeout, "reset", "no modem status observed after reset")
		case <-ctx.Done():
			return &Error{Kind: ErrTimeout, Op: "reset", Message: "cancelled", Cause: ctx.Err()}
		}
	}
}
