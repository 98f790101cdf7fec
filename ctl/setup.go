package ctl

import (
	"github.com/maxvt/pic18usb/hal"
	"github.com/maxvt/pic18usb/pkg"
)

// Standard request codes this engine understands. Class and vendor
// requests, and the remaining standard requests (GET_CONFIGURATION,
// CLEAR_FEATURE, SET_FEATURE, SET_DESCRIPTOR, GET_INTERFACE, SET_INTERFACE,
// SYNCH_FRAME), are out of scope.
const (
	ReqGetStatus        uint8 = 0
	ReqSetAddress       uint8 = 5
	ReqGetDescriptor    uint8 = 6
	ReqSetConfiguration uint8 = 9
)

// Descriptor type codes, as carried in the high byte of wValue for
// GET_DESCRIPTOR.
const (
	DescriptorDevice        uint8 = 1
	DescriptorConfiguration uint8 = 2
	DescriptorString        uint8 = 3
	DescriptorInterface     uint8 = 4
	DescriptorEndpoint      uint8 = 5
)

// SetupPacket is the 8-byte payload of a SETUP transaction.
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// ParseSetupPacket decodes buf as a SetupPacket. buf must be at least 8
// bytes, the fixed wire size of a SETUP packet.
func ParseSetupPacket(buf []byte) (SetupPacket, error) {
	if len(buf) < 8 {
		return SetupPacket{}, pkg.BadData.Err()
	}
	return SetupPacket{
		RequestType: buf[0],
		Request:     buf[1],
		Value:       uint16(buf[2]) | uint16(buf[3])<<8,
		Index:       uint16(buf[4]) | uint16(buf[5])<<8,
		Length:      uint16(buf[6]) | uint16(buf[7])<<8,
	}, nil
}

// Direction reports the data transfer direction encoded in bit 7 of
// RequestType: In for device-to-host, Out for host-to-device.
func (p SetupPacket) Direction() hal.Direction {
	if p.RequestType&0x80 != 0 {
		return hal.In
	}
	return hal.Out
}

// Type returns the request type field (bits 6:5): 0 standard, 1 class, 2
// vendor.
func (p SetupPacket) Type() uint8 {
	return (p.RequestType >> 5) & 0x03
}

// Recipient returns the request recipient field (bits 4:0): 0 device, 1
// interface, 2 endpoint, 3 other.
func (p SetupPacket) Recipient() uint8 {
	return p.RequestType & 0x1f
}

// DescriptorType returns the high byte of Value, meaningful only for
// GET_DESCRIPTOR/SET_DESCRIPTOR requests.
func (p SetupPacket) DescriptorType() uint8 {
	return uint8(p.Value >> 8)
}

// DescriptorIndex returns the low byte of Value, meaningful only for
// GET_DESCRIPTOR/SET_DESCRIPTOR requests.
func (p SetupPacket) DescriptorIndex() uint8 {
	return uint8(p.Value)
}
