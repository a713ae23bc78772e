// Package md5sum computes the hex MD5 digest the vendor validation request
// needs, streaming the file in fixed-size chunks rather than reading it
// whole into memory.
package md5sum

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"

	"miassistant/internal/miaerr"
)

// ChunkSize is the read buffer size (1 MiB). It is independent of the
// sideload driver's 64 KiB block size.
const ChunkSize = 1 << 20

// File hashes the file at path, reading it in ChunkSize chunks, and returns
// its lowercase hex MD5 digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", miaerr.IO(err, "opening %s", path)
	}
	defer f.Close()
	return Reader(f)
}

// Reader hashes everything r produces until EOF.
func Reader(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", miaerr.IO(err, "reading for md5")
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
