package protocol

import (
	"time"

	"miassistant/internal/miaerr"
)

// BulkDevice is the narrow USB collaborator contract the transport consumes.
// internal/usbhost's OpenDevice satisfies this by duck typing; the protocol
// package never imports internal/usbhost directly, keeping USB enumeration
// and claim primitives out of the core as required by spec.
type BulkDevice interface {
	BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error)
	BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error)
}

// Transport sends and receives Frames over a pair of bulk endpoints on a
// single open device. It exclusively borrows the device for its lifetime;
// callers must not share one Transport's device across a concurrent second
// Transport.
type Transport struct {
	Dev       BulkDevice
	BulkIn    uint8
	BulkOut   uint8
	TimeoutMs int
}

// NewTransport builds a Transport bound to dev's bulk-in/bulk-out endpoints.
func NewTransport(dev BulkDevice, bulkIn, bulkOut uint8, timeoutMs int) *Transport {
	return &Transport{Dev: dev, BulkIn: bulkIn, BulkOut: bulkOut, TimeoutMs: timeoutMs}
}

func (t *Transport) timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Send writes the frame header, then the payload if non-empty, as two
// separate bulk writes. Neither write is retried.
func (t *Transport) Send(f Frame, payload []byte) error {
	header := f.Encode()
	if _, err := t.Dev.BulkWrite(t.BulkOut, header[:], t.timeout()); err != nil {
		return miaerr.USB(err, "writing frame header")
	}
	if len(payload) > 0 {
		if _, err := t.Dev.BulkWrite(t.BulkOut, payload, t.timeout()); err != nil {
			return miaerr.USB(err, "writing frame payload")
		}
	}
	return nil
}

// Recv reads one frame header and, if it declares a payload, the payload
// bytes that follow.
func (t *Transport) Recv() (Frame, []byte, error) {
	header := make([]byte, 24)
	if _, err := t.Dev.BulkRead(t.BulkIn, header, t.timeout()); err != nil {
		return Frame{}, nil, miaerr.USB(err, "reading frame header")
	}
	f, err := DecodeFrame(header)
	if err != nil {
		return Frame{}, nil, err
	}
	if f.Len == 0 {
		return f, nil, nil
	}
	payload := make([]byte, f.Len)
	if _, err := t.Dev.BulkRead(t.BulkIn, payload, t.timeout()); err != nil {
		return Frame{}, nil, miaerr.USB(err, "reading frame payload")
	}
	return f, payload, nil
}
