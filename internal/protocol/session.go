package protocol

import (
	"strings"

	"miassistant/internal/miaerr"
)

// connectVersion and connectBanner are the fixed CNXN handshake version and
// banner the MiAssistant dialect expects; localStreamID is the local id sent
// in every OPEN.
const (
	connectVersion    uint32 = 0x01000001
	connectBanner            = "host::\x00"
	localStreamID     uint32 = 1
)

// Connect performs the CNXN handshake and returns the device's banner
// string. The trailing NUL in the outbound banner is included in the
// frame's length, matching the wire format observed from the firmware.
func Connect(t *Transport) (string, error) {
	banner := []byte(connectBanner)
	if err := t.Send(NewFrame(CmdConnect, connectVersion, MaxPayload, uint32(len(banner))), banner); err != nil {
		return "", err
	}
	f, payload, err := t.Recv()
	if err != nil {
		return "", err
	}
	if f.Cmd != CmdConnect {
		return "", miaerr.Protocol("expected CNXN reply, got 0x%x", f.Cmd)
	}
	return string(payload), nil
}

// SimpleCommand executes one OPEN -> (OKAY|WRTE)* -> OKAY -> CLSE
// micro-session and returns the device's reply, trimmed of trailing
// whitespace. The command text is sent without an appended NUL, unlike the
// CNXN banner and the sideload OPEN payload.
func SimpleCommand(t *Transport, cmd string) (string, error) {
	payload := []byte(cmd)
	if err := t.Send(NewFrame(CmdOpen, localStreamID, 0, uint32(len(payload))), payload); err != nil {
		return "", err
	}

	f, data, err := t.Recv()
	if err != nil {
		return "", err
	}
	if f.Cmd == CmdOkay {
		f, data, err = t.Recv()
		if err != nil {
			return "", err
		}
	}

	if err := t.Send(NewFrame(CmdOkay, f.Arg1, f.Arg0, 0), nil); err != nil {
		return "", err
	}

	if _, _, err := t.Recv(); err != nil { // expected CLSE; payload ignored
		return "", err
	}

	return strings.TrimRight(string(data), " \t\r\n"), nil
}
