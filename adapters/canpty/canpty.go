// Package canpty is a virtual CAN-over-pty bridge for bench-testing
// NBUS without hardware, the direct analogue of the teacher's
// serial-pty KISS TNC testing path (kissserial.go talks to a pty in
// test mode). Frames are byte-stuffed onto the pty the same way KISS
// frames a serial stream, since that escaping idiom works for any
// binary payload delimited by a sentinel byte, not just AX.25.
package canpty

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/plumcore/plumcore/ports"
)

const (
	fend  = 0xC0
	fesc  = 0xDB
	tfend = 0xDC
	tfesc = 0xDD
)

// Port is a CAN transport backed by one side of a pseudo-terminal
// pair.
type Port struct {
	ptmx *os.File
	tty  *os.File

	mu  sync.Mutex
	buf []byte
}

// Open creates a new pty pair and returns a Port bound to its master
// side. TTYName gives the slave path a second Port (or an external
// bench tool) can attach to.
func Open() (*Port, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("canpty: open: %w", err)
	}

	return &Port{ptmx: ptmx, tty: tty}, nil
}

// TTYName is the filesystem path of the pty's slave side.
func (p *Port) TTYName() string {
	return p.tty.Name()
}

// Close releases both sides of the pty pair.
func (p *Port) Close() error {
	_ = p.tty.Close()
	return p.ptmx.Close()
}

// Send frames and writes msg to the pty, per ports.CAN.
func (p *Port) Send(msg ports.CANMessage, timeout time.Duration) error {
	_ = p.ptmx.SetWriteDeadline(time.Now().Add(timeout))

	if _, err := p.ptmx.Write(encode(msg)); err != nil {
		return fmt.Errorf("canpty: write: %w", err)
	}

	return nil
}

// Receive blocks for up to timeout for one complete frame, per
// ports.CAN.
func (p *Port) Receive(timeout time.Duration) (ports.CANMessage, error) {
	deadline := time.Now().Add(timeout)

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if msg, ok, rest := tryDecode(p.buf); ok {
			p.buf = rest
			return msg, nil
		}

		_ = p.ptmx.SetReadDeadline(deadline)

		chunk := make([]byte, 256)

		n, err := p.ptmx.Read(chunk)
		if err != nil {
			return ports.CANMessage{}, fmt.Errorf("canpty: read: %w", err)
		}

		p.buf = append(p.buf, chunk[:n]...)
	}
}

// encode byte-stuffs one CAN message between FEND delimiters.
func encode(msg ports.CANMessage) []byte {
	payload := make([]byte, 0, 6+len(msg.Buf))

	if msg.ExtID {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}

	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], msg.ID)
	payload = append(payload, idBuf[:]...)
	payload = append(payload, byte(len(msg.Buf)))
	payload = append(payload, msg.Buf...)

	out := []byte{fend}

	for _, b := range payload {
		switch b {
		case fend:
			out = append(out, fesc, tfend)
		case fesc:
			out = append(out, fesc, tfesc)
		default:
			out = append(out, b)
		}
	}

	return append(out, fend)
}

// tryDecode looks for one complete FEND-delimited frame at the start
// of buf (skipping any leading FEND bytes), returning the decoded
// message, whether one was found, and the unconsumed remainder.
func tryDecode(buf []byte) (ports.CANMessage, bool, []byte) {
	start := -1

	for i, b := range buf {
		if b == fend {
			continue
		}

		start = i

		break
	}

	if start == -1 {
		return ports.CANMessage{}, false, nil
	}

	end := -1

	for i := start; i < len(buf); i++ {
		if buf[i] == fend {
			end = i
			break
		}
	}

	if end == -1 {
		return ports.CANMessage{}, false, buf
	}

	payload := unstuff(buf[start:end])
	rest := buf[end+1:]

	if len(payload) < 6 {
		return ports.CANMessage{}, false, rest
	}

	length := int(payload[5])
	if length > len(payload)-6 {
		length = len(payload) - 6
	}

	msg := ports.CANMessage{
		ExtID: payload[0] == 1,
		ID:    binary.BigEndian.Uint32(payload[1:5]),
		Buf:   append([]byte(nil), payload[6:6+length]...),
	}

	return msg, true, rest
}

func unstuff(raw []byte) []byte {
	out := make([]byte, 0, len(raw))

	for i := 0; i < len(raw); i++ {
		if raw[i] == fesc && i+1 < len(raw) {
			i++

			switch raw[i] {
			case tfend:
				out = append(out, fend)
			case tfesc:
				out = append(out, fesc)
			default:
				out = append(out, raw[i])
			}

			continue
		}

		out = append(out, raw[i])
	}

	return out
}
