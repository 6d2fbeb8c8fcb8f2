package xbee

// Frame type bytes, as they appear on the wire immediately after the
// length field. Names follow the original API frame names.
const (
	FrameTypeTXRequest64            byte = 0x00
	FrameTypeTXRequest16            byte = 0x01
	FrameTypeATCommand              byte = 0x08
	FrameTypeATCommandQueue         byte = 0x09
	FrameTypeZigbeeTransmitRequest  byte = 0x10
	FrameTypeExplicitAddressingCmd  byte = 0x11
	FrameTypeRemoteATCommandRequest byte = 0x17

	FrameTypeRXPacket64               byte = 0x80
	FrameTypeRXPacket16               byte = 0x81
	FrameTypeRXIO64                   byte = 0x82
	FrameTypeRXIO16                   byte = 0x83
	FrameTypeATCommandResponse        byte = 0x88
	FrameTypeTXStatus                 byte = 0x89
	FrameTypeModemStatus              byte = 0x8A
	FrameTypeZigbeeTransmitStatus     byte = 0x8B
	FrameTypeZigbeeReceivePacket      byte = 0x90
	FrameTypeZigbeeExplicitRXIndicate byte = 0x91
	FrameTypeIODataSampleRXIndicator  byte = 0x92
	FrameTypeRemoteATCommandResponse  byte = 0x97
)

// needsFrameID lists every frame type whose payload leads with a frame_id
// byte used for request/response correlation. Unsolicited/async frames
// (modem status, incoming data, IO samples) carry no frame_id.
var needsFrameID = map[byte]bool{
	FrameTypeTXRequest64:            true,
	FrameTypeTXRequest16:            true,
	FrameTypeATCommand:              true,
	FrameTypeATCommandQueue:         true,
	FrameTypeZigbeeTransmitRequest:  true,
	FrameTypeExplicitAddressingCmd:  true,
	FrameTypeRemoteATCommandRequest: true,

	FrameTypeATCommandResponse:       true,
	FrameTypeTXStatus:                true,
	FrameTypeZigbeeTransmitStatus:    true,
	FrameTypeRemoteATCommandResponse: true,
}

// NeedsFrameID reports whether frames of this type carry a frame_id as the
// first byte of their payload.
func NeedsFrameID(frameType byte) bool {
	return needsFrameID[frameType]
}

// respondsTo reports whether a received frame type is the expected
// response to a sent frame type, per the AT-command/remote-AT-command
// pairing rules (mnemonic matching is handled by the caller).
func respondsTo(sent, received byte) bool {
	switch sent {
	case FrameTypeATCommand, FrameTypeATCommandQueue:
		return received == FrameTypeATCommandResponse
	case FrameTypeRemoteATCommandRequest:
		return received == FrameTypeRemoteATCommandResponse
	case FrameTypeTXRequest64, FrameTypeTXRequest16:
		return received == FrameTypeTXStatus
	case FrameTypeZigbeeTransmitRequest, FrameTypeExplicitAddressingCmd:
		return received == FrameTypeZigbeeTransmitStatus
	default:
		return false
	}
}

// isAsyncIOFrame reports whether a frame type carries an unsolicited IO
// sample, used by the RAW_802_15_4 IO-sample special case.
func isAsyncIOFrame(frameType byte) bool {
	switch frameType {
	case FrameTypeRXIO64, FrameTypeRXIO16, FrameTypeIODataSampleRXIndicator:
		return true
	default:
		return false
	}
}

var frameTypeNames = map[byte]string{
	FrameTypeTXRequest64:              "tx_request_64",
	FrameTypeTXRequest16:              "tx_request_16",
	FrameTypeATCommand:                "at_command",
	FrameTypeATCommandQueue:           "at_command_queue",
	FrameTypeZigbeeTransmitRequest:    "zigbee_transmit_request",
	FrameTypeExplicitAddressingCmd:    "explicit_addressing_command",
	FrameTypeRemoteATCommandRequest:   "remote_at_command_request",
	FrameTypeRXPacket64:               "rx_packet_64",
	FrameTypeRXPacket16:               "rx_packet_16",
	FrameTypeRXIO64:                   "rx_io_64",
	FrameTypeRXIO16:                   "rx_io_16",
	FrameTypeATCommandResponse:        "at_command_response",
	FrameTypeTXStatus:                 "tx_status",
	FrameTypeModemStatus:              "modem_status",
	FrameTypeZigbeeTransmitStatus:     "zigbee_transmit_status",
	FrameTypeZigbeeReceivePacket:      "zigbee_receive_packet",
	FrameTypeZigbeeExplicitRXIndicate: "zigbee_explicit_rx_indicate",
	FrameTypeIODataSampleRXIndicator:  "io_data_sample_rx_indicator",
	FrameTypeRemoteATCommandResponse:  "remote_at_command_response",
}

// TypeName returns a human-readable name for a frame type byte, or
// "unknown" if it isn't one of the recognized API frame types.
func TypeName(frameType byte) string {
	if name, ok := frameTypeNames[frameType]; ok {
		return name
	}
	return "unknown"
}
