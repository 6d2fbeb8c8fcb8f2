package xbee

import (
	"context"
	"sync"
)

// RemoteDevice is a facade for a module addressed over the air through a
// LocalDevice's transport and correlator. It has no frame-ID counter of
// its own — every send borrows the local device's — and it never
// initializes the transport; identity fields are fetched lazily.
type RemoteDevice struct {
	mu sync.Mutex

	local  *LocalDevice
	addr64 Addr64
	addr16 Addr16

	identity DeviceIdentity
	events   *EventBus
}

// NewRemoteDevice creates a RemoteDevice addressed at addr64, reached
// through local. The 16-bit address starts unknown.
func NewRemoteDevice(local *LocalDevice, addr64 Addr64) *RemoteDevice {
	return &RemoteDevice{local: local, addr64: addr64, addr16: Addr16Unknown, events: NewEventBus()}
}

// Events returns the remote device's event bus, publishing
// EventIdentityUpdated and EventIOSample notifications. Subscribers must
// not block.
func (r *RemoteDevice) Events() *EventBus {
	return r.events
}

// Addr64 returns the remote module's 64-bit address.
func (r *RemoteDevice) Addr64() Addr64 { return r.addr64 }

// Identity returns a copy of the remote device's cached identity.
func (r *RemoteDevice) Identity() DeviceIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

func (r *RemoteDevice) ensureReady() error {
	if !r.local.IsOpen() {
		return newErr(ErrInterfaceNotOpen, "command", "local device not open")
	}
	return nil
}

// sendAT implements atSender by wrapping the AT command in a
// REMOTE_AT_COMMAND_REQUEST addressed to this device and sending it
// through the local device's shared correlator.
func (r *RemoteDevice) sendAT(ctx context.Context, mnemonic string, param []byte) (*ATCommandResponse, error) {
	if len(mnemonic) != 2 {
		return nil, newErr(ErrInvalidArg, "at", "mnemonic must be exactly 2 bytes")
	}
	r.local.mu.Lock()
	correlator := r.local.correlator
	r.local.mu.Unlock()
	if correlator == nil {
		return nil, newErr(ErrInterfaceNotOpen, "at", "local device not open")
	}

	body := buildRemoteATCommandBody(uint64(r.addr64), uint16(r.addr16), RemoteATOptionsApplyChanges, mnemonic, param)
	frame, err := correlator.SendSync(ctx, FrameTypeRemoteATCommandRequest, body, mnemonic)
	if err != nil {
		return nil, err
	}
	return parseRemoteATCommandResponse(frame.Body())
}

func (r *RemoteDevice) protocolHint() Protocol {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity.Protocol
}

// beginIOSampleWait opens a listener on the local device's listener
// registry, since the remote device has none of its own; it is reached by
// the same reader. Opened before the IS command is sent, same as the
// local device's, so the async frame can't arrive before anything is
// listening for it.
func (r *RemoteDevice) beginIOSampleWait() (*ioSampleWait, error) {
	r.local.mu.Lock()
	registry := r.local.registry
	timeout := r.local.cfg.ReceiveTimeout()
	r.local.mu.Unlock()
	if registry == nil {
		return nil, newErr(ErrInterfaceNotOpen, "await_io_sample", "local device not open")
	}

	id, ch := registry.Subscribe()
	return &ioSampleWait{ch: ch, cancel: func() { registry.Unsubscribe(id) }, timeout: timeout}, nil
}

// Identify lazily fetches NI, HV, VR for whichever fields aren't already
// cached, unlike LocalDevice.Initialize this never touches SH/SL since
// the remote's 64-bit address is already known at construction.
func (r *RemoteDevice) Identify(ctx context.Context) error {
	if err := r.ensureReady(); err != nil {
		return err
	}

	fetch := func(mnemonic string) ([]byte, error) {
		resp, err := r.sendAT(ctx, mnemonic, nil)
		if err != nil {
			return nil, err
		}
		if err := checkATStatus("identify", resp); err != nil {
			return nil, err
		}
		if len(resp.Value) == 0 {
			return nil, newErr(ErrOpNotSupported, "identify", "empty "+mnemonic+" response")
		}
		return resp.Value, nil
	}

	r.mu.Lock()
	haveNodeID, haveHW, haveFW := r.identity.NodeID != "", r.identity.hwSet, r.identity.fwSet
	r.identity.Addr64, r.identity.addr64Set = r.addr64, true
	r.mu.Unlock()

	if !haveNodeID {
		ni, err := fetch("NI")
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.identity.NodeID = string(ni)
		r.mu.Unlock()
	}
	if !haveHW {
		hv, err := fetch("HV")
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.identity.HardwareVersion, r.identity.hwSet = HardwareVersion(hv[len(hv)-1]), true
		r.mu.Unlock()
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
		r.mu.Lock()
		r.identity.FirmwareVersion, r.identity.fwSet = fw, true
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.identity.Protocol = protocolFromIdentity(r.identity.HardwareVersion, r.identity.FirmwareVersion)
	identity := r.identity
	r.mu.Unlock()

	r.events.Emit(DeviceEvent{Type: EventIdentityUpdated, Addr64: identity.Addr64, Identity: identity})
	return nil
}

func (r *RemoteDevice) GetParameter(ctx context.Context, mnemonic string) ([]byte, error) {
	if len(mnemonic) != 2 {
		return nil, newErr(ErrInvalidArg, "get_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	resp, err := r.sendAT(ctx, mnemonic, nil)
	if err != nil {
		return nil, err
	}
	if err := checkATStatus("get_parameter", resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (r *RemoteDevice) SetParameter(ctx context.Context, mnemonic string, value []byte) error {
	if value == nil {
		return newErr(ErrNullArg, "set_parameter", "value must not be nil")
	}
	if len(mnemonic) != 2 {
		return newErr(ErrInvalidArg, "set_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := r.ensureReady(); err != nil {
		return err
	}
	resp, err := r.sendAT(ctx, mnemonic, value)
	if err != nil {
		return err
	}
	return checkATStatus("set_parameter", resp)
}

func (r *RemoteDevice) ExecuteParameter(ctx context.Context, mnemonic string) error {
	if len(mnemonic) != 2 {
		return newErr(ErrInvalidArg, "execute_parameter", "AT mnemonic must be exactly 2 bytes")
	}
	if err := r.ensureReady(); err != nil {
		return err
	}
	resp, err := r.sendAT(ctx, mnemonic, nil)
	if err != nil {
		return err
	}
	return checkATStatus("execute_parameter", resp)
}

func (r *RemoteDevice) SetIOConfig(ctx context.Context, line IOLine, mode IOMode) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	return setIOConfig(ctx, r, line, mode)
}

func (r *RemoteDevice) GetIOConfig(ctx context.Context, line IOLine) (IOMode, error) {
	if err := r.ensureReady(); err != nil {
		return 0, err
	}
	return getIOConfig(ctx, r, line)
}

func (r *RemoteDevice) SetDIO(ctx context.Context, line IOLine, v DigitalValue) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	return setDIO(ctx, r, line, v)
}

func (r *RemoteDevice) GetDIO(ctx context.Context, line IOLine) (DigitalValue, error) {
	if err := r.ensureReady(); err != nil {
		return 0, err
	}
	return getDIO(ctx, r, line)
}

func (r *RemoteDevice) SetPWMDuty(ctx context.Context, line IOLine, pct float64) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	return setPWMDuty(ctx, r, line, pct)
}

func (r *RemoteDevice) GetPWMDuty(ctx context.Context, line IOLine) (float64, error) {
	if err := r.ensureReady(); err != nil {
		return 0, err
	}
	return getPWMDuty(ctx, r, line)
}

func (r *RemoteDevice) GetADC(ctx context.Context, line IOLine) (uint16, error) {
	if err := r.ensureReady(); err != nil {
		return 0, err
	}
	return getADC(ctx, r, line)
}

func (r *RemoteDevice) GetIOSample(ctx context.Context) (*IOSample, error) {
	if err := r.ensureReady(); err != nil {
		return nil, err
	}
	sample, err := getIOSample(ctx, r)
	if err != nil {
		return nil, err
	}
	r.events.Emit(DeviceEvent{Type: EventIOSample, Addr64: r.addr64, Sample: sample})
	return sample, nil
}

// Reset sends the AT FR command and returns once it acknowledges OK; a
// local modem status frame can never originate from a remote module, so
// unlike LocalDevice.Reset there is nothing further to wait for.
func (r *RemoteDevice) Reset(ctx context.Context) error {
	if err := r.ensureReady(); err != nil {
		return err
	}
	resp, err := r.sendAT(ctx, "FR", nil)
	if err != nil {
		return err
	}
	return checkATStatus("reset", resp)
}
