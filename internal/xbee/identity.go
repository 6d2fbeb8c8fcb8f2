package xbee

import "fmt"

// Addr64 is a module's 64-bit IEEE address.
type Addr64 uint64

const (
	Addr64Unknown   Addr64 = 0xFFFFFFFFFFFFFFFF
	Addr64Broadcast Addr64 = 0x000000000000FFFF
)

func (a Addr64) String() string { return fmt.Sprintf("%016X", uint64(a)) }

// Addr16 is a module's 16-bit network address.
type Addr16 uint16

const Addr16Unknown Addr16 = 0xFFFE

func (a Addr16) String() string { return fmt.Sprintf("%04X", uint16(a)) }

// addr64FromSHSL builds a 64-bit address from a module's SH (high 4
// bytes) and SL (low 4 bytes) AT responses.
func addr64FromSHSL(sh, sl []byte) (Addr64, error) {
	if len(sh) != 4 || len(sl) != 4 {
		return 0, newErr(ErrOpNotSupported, "initialize", "SH/SL response not 4 bytes")
	}
	var v uint64
	for _, b := range sh {
		v = v<<8 | uint64(b)
	}
	for _, b := range sl {
		v = v<<8 | uint64(b)
	}
	return Addr64(v), nil
}

// HardwareVersion is the module's hardware version byte (the HV AT
// command's value), mapped to a known module family for display only; it
// never gates behavior.
type HardwareVersion byte

const (
	HWX09_009         HardwareVersion = 0x17
	HWX09_019         HardwareVersion = 0x18
	HWXH9_009         HardwareVersion = 0x19
	HWXH9_019         HardwareVersion = 0x1A
	HWXBeeProZNet25   HardwareVersion = 0x1E
	HWXBeeZNet25      HardwareVersion = 0x1F
	HWXBeeProS2       HardwareVersion = 0x20
	HWXBeeS2          HardwareVersion = 0x21
	HWXBeeProS2B      HardwareVersion = 0x22
	HWXBeeProS2C      HardwareVersion = 0x32
	HWXBeeDigiMesh24  HardwareVersion = 0x25
	HWXBeeProDigiMesh HardwareVersion = 0x26
	HWXBeeWiFiS6B     HardwareVersion = 0x30
)

// String names the module family, falling back to "Unknown(0x..)" for
// hardware version bytes not in the known set.
func (h HardwareVersion) String() string {
	switch h {
	case HWX09_009:
		return "XBee 802.15.4"
	case HWX09_019:
		return "XBee-PRO 802.15.4"
	case HWXH9_009:
		return "XBee 802.15.4 (H)"
	case HWXH9_019:
		return "XBee-PRO 802.15.4 (H)"
	case HWXBeeProZNet25:
		return "XBee-PRO ZNet 2.5"
	case HWXBeeZNet25:
		return "XBee ZNet 2.5"
	case HWXBeeProS2:
		return "XBee-PRO S2"
	case HWXBeeS2:
		return "XBee S2"
	case HWXBeeProS2B:
		return "XBee-PRO S2B"
	case HWXBeeProS2C:
		return "XBee-PRO S2C"
	case HWXBeeDigiMesh24:
		return "XBee DigiMesh 2.4"
	case HWXBeeProDigiMesh:
		return "XBee-PRO DigiMesh 2.4"
	case HWXBeeWiFiS6B:
		return "XBee Wi-Fi S6B"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", byte(h))
	}
}

// Protocol is the radio protocol a module speaks, derived from its
// hardware version alone; the firmware version is not consulted (see
// protocolFromIdentity).
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolZigbee
	ProtocolRaw80215_4
	ProtocolDigiMesh
	ProtocolXBeeWiFi
)

func (p Protocol) String() string {
	switch p {
	case ProtocolZigbee:
		return "ZIGBEE"
	case ProtocolRaw80215_4:
		return "RAW_802_15_4"
	case ProtocolDigiMesh:
		return "DIGI_MESH"
	case ProtocolXBeeWiFi:
		return "XBEE_WIFI"
	default:
		return "UNKNOWN"
	}
}

// protocolFromIdentity derives the protocol from hardware version family;
// firmware version is accepted but currently only hardware version
// decides, since the Series 1/2.5 ambiguity documented in the original
// source has no resolvable rule without the firmware reference it itself
// points to (see DESIGN.md).
func protocolFromIdentity(hw HardwareVersion, firmwareVersion string) Protocol {
	_ = firmwareVersion
	switch hw {
	case HWX09_009, HWX09_019, HWXH9_009, HWXH9_019:
		return ProtocolRaw80215_4
	case HWXBeeProZNet25, HWXBeeZNet25, HWXBeeProS2, HWXBeeS2, HWXBeeProS2B, HWXBeeProS2C:
		return ProtocolZigbee
	case HWXBeeDigiMesh24, HWXBeeProDigiMesh:
		return ProtocolDigiMesh
	case HWXBeeWiFiS6B:
		return ProtocolXBeeWiFi
	default:
		return ProtocolUnknown
	}
}

// DeviceIdentity is a local or remote device's cached, lazily-populated
// identity. Lifecycle: initialize() fills every empty field exactly once;
// a re-initialize only overwrites fields still at their zero value.
type DeviceIdentity struct {
	Addr64          Addr64
	Addr16          Addr16
	NodeID          string
	HardwareVersion HardwareVersion
	FirmwareVersion string
	Protocol        Protocol

	addr64Set bool
	hwSet     bool
	fwSet     bool
}

func firmwareVersionString(vr []byte) (string, error) {
	if len(vr) != 2 {
		return "", newErr(ErrOpNotSupported, "initialize", "VR response not 2 bytes")
	}
	return fmt.Sprintf("%02X%02X", vr[0], vr[1]), nil
}
