package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectReturnsDeviceBanner(t *testing.T) {
	dev := &fakeDevice{}
	reply := NewFrame(CmdConnect, connectVersion, MaxPayload, uint32(len("device::\x00")))
	header := reply.Encode()
	dev.queue(header[:], []byte("device::\x00"))

	tr := NewTransport(dev, 0x81, 0x01, 1000)
	banner, err := Connect(tr)
	require.NoError(t, err)
	assert.Equal(t, "device::\x00", banner)
	require.Len(t, dev.Written, 2)
}

func TestConnectRejectsUnexpectedReplyCommand(t *testing.T) {
	dev := &fakeDevice{}
	reply := NewFrame(CmdOkay, 0, 0, 0)
	header := reply.Encode()
	dev.queue(header[:])

	tr := NewTransport(dev, 0x81, 0x01, 1000)
	_, err := Connect(tr)
	require.Error(t, err)
}

func TestSimpleCommandWithImmediateOkayThenWrite(t *testing.T) {
	dev := &fakeDevice{}

	okay := NewFrame(CmdOkay, 5, 1, 0)
	okayHdr := okay.Encode()
	wrte := NewFrame(CmdWrite, 5, 1, 5)
	wrteHdr := wrte.Encode()
	clse := NewFrame(CmdClose, 5, 1, 0)
	clseHdr := clse.Encode()

	dev.queue(okayHdr[:], wrteHdr[:], []byte("reply"), clseHdr[:])

	tr := NewTransport(dev, 0x81, 0x01, 1000)
	reply, err := SimpleCommand(tr, "getdevice:")
	require.NoError(t, err)
	assert.Equal(t, "reply", reply)
}

func TestSimpleCommandWithDirectWrite(t *testing.T) {
	dev := &fakeDevice{}

	wrte := NewFrame(CmdWrite, 5, 1, 7)
	wrteHdr := wrte.Encode()
	clse := NewFrame(CmdClose, 5, 1, 0)
	clseHdr := clse.Encode()

	dev.queue(wrteHdr[:], []byte("1.2.3 \n"), clseHdr[:])

	tr := NewTransport(dev, 0x81, 0x01, 1000)
	reply, err := SimpleCommand(tr, "getversion:")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", reply)
}
