package sideload

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"miassistant/internal/protocol"
)

func writePayload(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.img")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunFullTransferFourBlocks(t *testing.T) {
	path := writePayload(t, 200000)
	dev := &fakeDevice{}
	dev.queueBlockRequest(1, 1, 0)
	dev.queueBlockRequest(1, 1, 1)
	dev.queueBlockRequest(1, 1, 2)
	dev.queueBlockRequest(1, 1, 3)
	dev.queueWrite(1, 1, "transfer complete")

	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)

	var sent, total uint64
	err := Run(tr, path, "tok", nil, false, func(s, tt uint64) { sent, total = s, tt })
	require.NoError(t, err)
	assert.Equal(t, uint64(200000), sent)
	assert.Equal(t, uint64(200000), total)

	_, err = os.Stat(journalPath(path))
	assert.True(t, os.IsNotExist(err), "journal should be cleared on completion")
}

func TestRunRepeatedBlockRequestResends(t *testing.T) {
	path := writePayload(t, 200000)
	dev := &fakeDevice{}
	dev.queueBlockRequest(1, 1, 0)
	dev.queueBlockRequest(1, 1, 2)
	dev.queueBlockRequest(1, 1, 2) // device asks again for the same block
	dev.queueWrite(1, 1, "transfer complete")

	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)

	var calls int
	err := Run(tr, path, "tok", nil, false, func(uint64, uint64) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 4, calls) // block 0, block 2, block 2 again, final size/size report
}

func TestRunSkipsStaleBlockWithoutResponse(t *testing.T) {
	path := writePayload(t, 200000)

	// Seed a journal claiming block 1 was already acknowledged, so a resumed
	// run starts at block 2.
	saveJournal(State{File: path, Size: 200000, LastBlock: 1})

	dev := &fakeDevice{}
	dev.queueBlockRequest(1, 1, 0) // stale: below startBlock 2
	dev.queueBlockRequest(1, 1, 2)
	dev.queueBlockRequest(1, 1, 3)
	dev.queueWrite(1, 1, "transfer complete")

	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)
	err := Run(tr, path, "tok", nil, true, nil)
	require.NoError(t, err)

	// OPEN (2 writes) + block 2 (WRTE+payload+OKAY = 3 writes) + block 3
	// (3 writes). The stale block-0 request produces zero writes: no frame
	// at all is sent back for it.
	assert.Len(t, dev.Written, 2+3+3)
}

func TestRunCancelPersistsJournalWithoutError(t *testing.T) {
	path := writePayload(t, 200000)
	dev := &fakeDevice{}

	var cancel atomic.Bool
	cancel.Store(true)

	tr := protocol.NewTransport(dev, 0x81, 0x01, 1000)
	err := Run(tr, path, "tok", &cancel, false, nil)
	require.NoError(t, err)

	st, ok := loadJournal(path)
	require.True(t, ok)
	assert.Equal(t, int64(-1), st.LastBlock)
}

func TestRunResumesFromJournalAfterRestart(t *testing.T) {
	path := writePayload(t, 200000)

	// First partial run: only block 0 gets requested, then cancel fires.
	dev1 := &fakeDevice{}
	dev1.queueBlockRequest(1, 1, 0)
	var cancelAfterFirstBlock atomic.Bool
	tr1 := protocol.NewTransport(dev1, 0x81, 0x01, 1000)

	first := true
	err := Run(tr1, path, "tok", &cancelAfterFirstBlock, false, func(sent, total uint64) {
		if first {
			cancelAfterFirstBlock.Store(true)
			first = false
		}
	})
	require.NoError(t, err)

	st, ok := loadJournal(path)
	require.True(t, ok)
	assert.Equal(t, int64(0), st.LastBlock)

	// Second run resumes: device should be asked to start from block 1.
	dev2 := &fakeDevice{}
	dev2.queueBlockRequest(1, 1, 1)
	dev2.queueBlockRequest(1, 1, 2)
	dev2.queueBlockRequest(1, 1, 3)
	dev2.queueWrite(1, 1, "transfer complete")

	tr2 := protocol.NewTransport(dev2, 0x81, 0x01, 1000)
	err = Run(tr2, path, "tok", nil, true, nil)
	require.NoError(t, err)

	openCmd := string(dev2.Written[1])
	assert.True(t, strings.HasPrefix(openCmd, "sideload-host:200000:65536:tok:1"))
}
