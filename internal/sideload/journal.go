package sideload

import (
	"encoding/json"
	"os"
)

// State is the resume journal persisted alongside a sideload payload file.
// LastBlock of -1 means nothing has been acknowledged yet.
type State struct {
	File      string `json:"file"`
	Size      uint64 `json:"size"`
	LastBlock int64  `json:"last_block"`
}

// journalPath returns the sidecar path for a payload at path.
func journalPath(path string) string {
	return path + ".sideload.state"
}

// loadJournal reads and parses the sidecar for path. Any failure — missing
// file, malformed JSON — is reported as "no journal", not an error; resume
// is a best-effort optimization, never a correctness requirement.
func loadJournal(path string) (State, bool) {
	data, err := os.ReadFile(journalPath(path))
	if err != nil {
		return State{}, false
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false
	}
	return st, true
}

// saveJournal writes the sidecar for st.File. Writing is via tempfile +
// rename so a crash mid-write loses at worst the journal, never corrupts it
// into a torn, half-written file. Failures are swallowed: the journal is an
// optimization, and its loss only costs a from-scratch resume.
func saveJournal(st State) {
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	path := journalPath(st.File)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, path)
}

// clearJournal best-effort removes the sidecar for path.
func clearJournal(path string) {
	_ = os.Remove(journalPath(path))
}
