// Package sideload drives the device-pull sideload-host block transfer
// protocol: the device requests block indices by number and the host seeks
// the payload file and answers with that block's bytes.
package sideload

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"miassistant/internal/miaerr"
	"miassistant/internal/protocol"
)

// ChunkSize is the fixed block size the sideload-host protocol transfers.
const ChunkSize = 64 * 1024

const localStreamID uint32 = 1

// Progress is called after every accepted block with the bytes sent so far
// and the total payload size, and once more with (total, total) when the
// transfer completes.
type Progress func(sent, total uint64)

// Run drives one sideload session over t for the file at path, authorized
// by token. Cancel is polled between block iterations; when set, Run
// persists a resume journal and returns nil — cancellation is not an error.
// When allowResume is true and a journal matching the current file size
// exists, the transfer resumes after the last acknowledged block.
func Run(t *protocol.Transport, path, token string, cancel *atomic.Bool, allowResume bool, onProgress Progress) error {
	f, err := os.Open(path)
	if err != nil {
		return miaerr.IO(err, "opening payload %q", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return miaerr.IO(err, "statting payload %q", path)
	}
	size := uint64(fi.Size())

	startBlock := int64(0)
	if allowResume {
		if st, ok := loadJournal(path); ok && st.Size == size {
			startBlock = st.LastBlock + 1
		}
	}

	cmd := fmt.Sprintf("sideload-host:%d:%d:%s:%d", size, ChunkSize, token, startBlock)
	payload := append([]byte(cmd), 0)
	if err := t.Send(protocol.NewFrame(protocol.CmdOpen, localStreamID, 0, uint32(len(payload))), payload); err != nil {
		return err
	}

	lastBlock := startBlock - 1
	blocksSinceFlush := 0
	block := make([]byte, ChunkSize)

	for {
		if cancel != nil && cancel.Load() {
			saveJournal(State{File: path, Size: size, LastBlock: lastBlock})
			return nil
		}

		f2, rxPayload, err := t.Recv()
		if err != nil {
			return err
		}

		if f2.Cmd == protocol.CmdOkay {
			if err := t.Send(protocol.NewFrame(protocol.CmdOkay, f2.Arg1, f2.Arg0, 0), nil); err != nil {
				return err
			}
			continue
		}
		if f2.Cmd != protocol.CmdWrite {
			continue
		}

		text := string(rxPayload)
		if len(text) > 8 {
			break // completion/error message, not a block number
		}

		blockNum, err := strconv.ParseUint(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return miaerr.Protocol("unparsable sideload block number %q: %v", text, err)
		}

		if int64(blockNum) < startBlock {
			continue // stale request from before the resume point
		}

		offset := blockNum * ChunkSize
		if offset > size {
			break // device overran; treat as completion
		}

		toSend := uint64(ChunkSize)
		if offset+toSend > size {
			toSend = size - offset
		}

		if _, err := f.Seek(int64(offset), 0); err != nil {
			return miaerr.IO(err, "seeking payload to offset %d", offset)
		}
		n, err := f.Read(block[:toSend])
		if err != nil {
			return miaerr.IO(err, "reading payload at offset %d", offset)
		}

		if err := t.Send(protocol.NewFrame(protocol.CmdWrite, f2.Arg1, f2.Arg0, uint32(n)), block[:n]); err != nil {
			return err
		}
		if err := t.Send(protocol.NewFrame(protocol.CmdOkay, f2.Arg1, f2.Arg0, 0), nil); err != nil {
			return err
		}

		if onProgress != nil {
			onProgress(offset+uint64(n), size)
		}
		lastBlock = int64(blockNum)

		blocksSinceFlush++
		if blocksSinceFlush >= 16 {
			saveJournal(State{File: path, Size: size, LastBlock: lastBlock})
			blocksSinceFlush = 0
		}
	}

	clearJournal(path)
	if onProgress != nil {
		onProgress(size, size)
	}
	return nil
}
