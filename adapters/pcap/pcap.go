// Package pcap is a diagnostic packet-capture writer that names
// rotated capture files with strftime patterns
// (nbus-%Y%m%d-%H%M%S.pcap), mirroring the teacher's log.go
// daily-log-file naming strategy — retargeted at raw binary frame
// capture instead of CSV rows.
package pcap

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/plumcore/plumcore/crypto"
)

// Writer appends length-prefixed raw frames to a file whose name is
// recomputed from pattern on every write, rotating to a new file the
// moment the formatted name changes. A Writer built with
// NewEncryptedWriter seals every frame under a ChaCha20-Poly1305 key
// before it touches disk, so a capture can be handed off as a
// diagnostics export without exposing live bus traffic.
type Writer struct {
	dir     string
	pattern *strftime.Strftime
	key     []byte

	f    *os.File
	name string
}

// NewWriter roots captures under dir, naming files per pattern.
func NewWriter(dir, pattern string) (*Writer, error) {
	return newWriter(dir, pattern, nil)
}

// NewEncryptedWriter behaves like NewWriter, but seals every frame
// with crypto.SealChaCha under key first. Pair with ReadFrames and the
// same key to recover the plaintext capture.
func NewEncryptedWriter(dir, pattern string, key []byte) (*Writer, error) {
	return newWriter(dir, pattern, key)
}

func newWriter(dir, pattern string, key []byte) (*Writer, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("pcap: pattern %q: %w", pattern, err)
	}

	return &Writer{dir: dir, pattern: f, key: key}, nil
}

// Write appends one captured frame, each prefixed with a 4-byte
// big-endian length so a reader can split the capture stream back
// into frames without reparsing NBUS CAN IDs. If w was built with
// NewEncryptedWriter, the frame is sealed before the length is taken,
// since sealing grows it by a nonce and an authentication tag.
func (w *Writer) Write(frame []byte) error {
	name := w.pattern.FormatString(time.Now())

	if name != w.name {
		if err := w.rotate(name); err != nil {
			return err
		}
	}

	out := frame

	if w.key != nil {
		sealed, err := crypto.SealChaCha(w.key, frame, nil)
		if err != nil {
			return fmt.Errorf("pcap: seal frame: %w", err)
		}

		out = sealed
	}

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(out))) //nolint:gosec

	if _, err := w.f.Write(length[:]); err != nil {
		return fmt.Errorf("pcap: write length: %w", err)
	}

	if _, err := w.f.Write(out); err != nil {
		return fmt.Errorf("pcap: write frame: %w", err)
	}

	return nil
}

func (w *Writer) rotate(name string) error {
	if w.f != nil {
		_ = w.f.Close()
	}

	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("pcap: open %s: %w", path, err)
	}

	w.f = f
	w.name = name

	return nil
}

// Close releases the currently open capture file, if any.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}

	return w.f.Close()
}

// ReadFrames splits a capture file back into its individual frames. If
// key is non-nil, each frame is opened with crypto.OpenChaCha first;
// it must be the same key the file was written with via
// NewEncryptedWriter, or every frame will fail authentication.
func ReadFrames(path string, key []byte) ([][]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("pcap: read %s: %w", path, err)
	}

	var frames [][]byte

	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("pcap: truncated length prefix")
		}

		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]

		if uint32(len(data)) < n {
			return nil, fmt.Errorf("pcap: truncated frame")
		}

		raw := data[:n]
		data = data[n:]

		if key != nil {
			plain, err := crypto.OpenChaCha(key, raw, nil)
			if err != nil {
				return nil, fmt.Errorf("pcap: open frame: %w", err)
			}

			raw = plain
		}

		frames = append(frames, append([]byte(nil), raw...))
	}

	return frames, nil
}
