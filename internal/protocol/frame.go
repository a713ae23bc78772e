// Package protocol implements the ADB-derived framing, transport and simple
// command session used to talk to a device in MiAssistant recovery mode.
package protocol

import (
	"encoding/binary"

	"miassistant/internal/miaerr"
)

// Command codes understood by the MiAssistant recovery dialect. Unknown
// command values are not rejected by DecodeFrame; the session layer decides what
// to do with them.
const (
	CmdConnect uint32 = 0x4E584E43 // CNXN
	CmdOpen    uint32 = 0x4E45504F // OPEN
	CmdOkay    uint32 = 0x59414B4F // OKAY
	CmdWrite   uint32 = 0x45545257 // WRTE
	CmdClose   uint32 = 0x45534C43 // CLSE
)

// MaxPayload is the largest payload a single Frame may carry.
const MaxPayload = 1024 * 1024

// frameSize is the fixed length of an encoded Frame header in bytes.
const frameSize = 24

// Frame is the 24-byte ADB-style packet header. Checksum is always sent as
// zero; the firmware does not validate it on receive.
type Frame struct {
	Cmd      uint32
	Arg0     uint32
	Arg1     uint32
	Len      uint32
	Checksum uint32
	Magic    uint32
}

// NewFrame builds a Frame with the checksum zeroed and magic derived from
// cmd, per the wire invariant magic == cmd ^ 0xFFFFFFFF.
func NewFrame(cmd, arg0, arg1, length uint32) Frame {
	return Frame{Cmd: cmd, Arg0: arg0, Arg1: arg1, Len: length, Magic: cmd ^ 0xFFFFFFFF}
}

// Encode serializes f into a fixed 24-byte little-endian buffer.
func (f Frame) Encode() [frameSize]byte {
	var buf [frameSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], f.Cmd)
	binary.LittleEndian.PutUint32(buf[4:8], f.Arg0)
	binary.LittleEndian.PutUint32(buf[8:12], f.Arg1)
	binary.LittleEndian.PutUint32(buf[12:16], f.Len)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], f.Cmd^0xFFFFFFFF)
	return buf
}

// DecodeFrame parses a 24-byte header buffer. It never panics: any input
// yields either a valid Frame or a *miaerr.Error of kind Protocol.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) != frameSize {
		return Frame{}, miaerr.Protocol("short header: got %d bytes, want %d", len(buf), frameSize)
	}
	f := Frame{
		Cmd:      binary.LittleEndian.Uint32(buf[0:4]),
		Arg0:     binary.LittleEndian.Uint32(buf[4:8]),
		Arg1:     binary.LittleEndian.Uint32(buf[8:12]),
		Len:      binary.LittleEndian.Uint32(buf[12:16]),
		Checksum: binary.LittleEndian.Uint32(buf[16:20]),
		Magic:    binary.LittleEndian.Uint32(buf[20:24]),
	}
	if f.Magic != f.Cmd^0xFFFFFFFF {
		return Frame{}, miaerr.Protocol("magic mismatch: cmd=0x%08x magic=0x%08x", f.Cmd, f.Magic)
	}
	if f.Len > MaxPayload {
		return Frame{}, miaerr.Protocol("payload too large: %d > %d", f.Len, MaxPayload)
	}
	return f, nil
}
