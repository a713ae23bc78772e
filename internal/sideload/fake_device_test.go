package sideload

import (
	"time"

	"miassistant/internal/protocol"
)

// fakeDevice is an in-memory protocol.BulkDevice. Reads are served from a
// queue of pre-scripted chunks, one chunk per call, matching the way
// Transport issues one BulkRead for a frame header and, if the frame
// declares a payload, a second BulkRead for the payload bytes.
type fakeDevice struct {
	toRead  [][]byte
	readPos int
	Written [][]byte
}

func (d *fakeDevice) BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	d.Written = append(d.Written, cp)
	return len(data), nil
}

func (d *fakeDevice) BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	if d.readPos >= len(d.toRead) {
		return 0, errNoMoreReads{}
	}
	chunk := d.toRead[d.readPos]
	d.readPos++
	n := copy(buf, chunk)
	return n, nil
}

// queueWrite appends a WRTE frame (header + payload) requesting the given
// device-pull text, simulating one "device asks for block N" round.
func (d *fakeDevice) queueWrite(arg0, arg1 uint32, text string) {
	f := protocol.NewFrame(protocol.CmdWrite, arg0, arg1, uint32(len(text)))
	header := f.Encode()
	d.toRead = append(d.toRead, header[:], []byte(text))
}

func (d *fakeDevice) queueBlockRequest(streamLocal, streamRemote uint32, block uint64) {
	d.queueWrite(streamLocal, streamRemote, itoa(block))
}

func itoa(n uint64) string {
	buf := make([]byte, 20)
	i := len(buf)
	if n == 0 {
		return "0"
	}
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type errNoMoreReads struct{}

func (errNoMoreReads) Error() string { return "fake device: no more scripted reads" }
