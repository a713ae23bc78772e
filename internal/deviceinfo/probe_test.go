package deviceinfo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miassistant/internal/protocol"
)

// scriptedDevice answers each OPEN with a fixed, ordered reply, one per
// query, cycling through SimpleCommand's OKAY/WRTE/CLSE micro-session so
// Probe can be exercised without real hardware.
type scriptedDevice struct {
	replies [][]byte
	call    int
	toRead  [][]byte
	readPos int
}

func (d *scriptedDevice) BulkWrite(endpoint uint8, data []byte, timeout time.Duration) (int, error) {
	// Every OPEN frame write triggers scripting of that query's reply
	// sequence: WRTE(reply) then CLSE. We detect the OPEN by its frame cmd.
	if len(data) == 24 {
		f, err := protocol.DecodeFrame(data)
		if err == nil && f.Cmd == protocol.CmdOpen && d.call < len(d.replies) {
			reply := d.replies[d.call]
			d.call++
			wrte := protocol.NewFrame(protocol.CmdWrite, f.Arg1, f.Arg0, uint32(len(reply)))
			wrteHdr := wrte.Encode()
			clse := protocol.NewFrame(protocol.CmdClose, f.Arg1, f.Arg0, 0)
			clseHdr := clse.Encode()
			d.toRead = append(d.toRead, wrteHdr[:], reply, clseHdr[:])
		}
	}
	return len(data), nil
}

func (d *scriptedDevice) BulkRead(endpoint uint8, buf []byte, timeout time.Duration) (int, error) {
	if d.readPos >= len(d.toRead) {
		return 0, assert.AnError
	}
	chunk := d.toRead[d.readPos]
	d.readPos++
	return copy(buf, chunk), nil
}

func TestProbeAggregatesAllEightFields(t *testing.T) {
	dev := &scriptedDevice{replies: [][]byte{
		[]byte("product"),
		[]byte("V1.0.0.0"),
		[]byte("SERIAL1"),
		[]byte("codebase"),
		[]byte("stable"),
		[]byte("en-US"),
		[]byte("CN"),
		[]byte("cn_global"),
	}}
	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)

	info, err := Probe(tr)
	require.NoError(t, err)
	assert.Equal(t, "product", info.Device)
	assert.Equal(t, "V1.0.0.0", info.Version)
	assert.Equal(t, "SERIAL1", info.SN)
	assert.Equal(t, "codebase", info.Codebase)
	assert.Equal(t, "stable", info.Branch)
	assert.Equal(t, "en-US", info.Language)
	assert.Equal(t, "CN", info.Region)
	assert.Equal(t, "cn_global", info.Romzone)
}

func TestProbeAbortsOnFirstQueryFailure(t *testing.T) {
	dev := &scriptedDevice{replies: [][]byte{}} // no scripted replies at all
	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)

	_, err := Probe(tr)
	require.Error(t, err)
}
