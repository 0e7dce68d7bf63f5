// Package socketcan is the production CAN transport: a Linux
// AF_CAN/SOCK_RAW raw socket bound to one interface, built on
// golang.org/x/sys/unix the same way the teacher's serial_port.go
// wraps low-level OS transport calls behind a small open/send/receive
// surface — swapped from termios to the CAN_RAW socket option set.
package socketcan

import (
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/plumcore/plumcore/ports"
)

// canfd_frame layout: can_id(4) | len(1) | flags(1) | res0(1) |
// res1(1) | data[64], matching the kernel's CAN-FD frame shape so a
// single transport handles both classic CAN and CAN-FD up to the
// 64-byte ceiling spec.md §6 gives CANMessage.Buf.
const (
	frameSize  = 72
	dataOffset = 8
	maxData    = 64

	effFlag = 0x80000000
	effMask = 0x1FFFFFFF
)

// Port is one bound CAN_RAW socket.
type Port struct {
	fd int
}

// sockaddrCAN mirrors struct sockaddr_can for AF_CAN, bind-only use
// (no rx_id/tx_id addressing; raw CAN_RAW is interface-scoped).
type sockaddrCAN struct {
	family  uint16
	ifindex int32
	_       [8]byte
}

// Open binds a CAN_RAW socket to the named interface (e.g. "can0").
func Open(ifname string) (*Port, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}

	ifreq, err := unix.NewIfreq(ifname)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: ifreq %s: %w", ifname, err)
	}

	if err := unix.IoctlIfreq(fd, unix.SIOCGIFINDEX, ifreq); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: SIOCGIFINDEX %s: %w", ifname, err)
	}

	sa := sockaddrCAN{family: unix.AF_CAN, ifindex: int32(ifreq.Uint32())} //nolint:gosec

	if _, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa)); errno != 0 { //nolint:gosec
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %s: %w", ifname, errno)
	}

	return &Port{fd: fd}, nil
}

// Close releases the underlying socket.
func (p *Port) Close() error {
	return unix.Close(p.fd)
}

// Send encodes and writes one frame, honoring timeout as SO_SNDTIMEO.
func (p *Port) Send(msg ports.CANMessage, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(p.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
		return fmt.Errorf("socketcan: set send timeout: %w", err)
	}

	if _, err := unix.Write(p.fd, encodeFrame(msg)); err != nil {
		return fmt.Errorf("socketcan: write: %w", err)
	}

	return nil
}

// Receive reads and decodes one frame, honoring timeout as
// SO_RCVTIMEO. Only ExtID frames carry meaningful NBUS content; the
// caller (nbus-core's receive loop) is responsible for filtering, per
// spec.md §6.
func (p *Port) Receive(timeout time.Duration) (ports.CANMessage, error) {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(p.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return ports.CANMessage{}, fmt.Errorf("socketcan: set recv timeout: %w", err)
	}

	buf := make([]byte, frameSize)

	n, err := unix.Read(p.fd, buf)
	if err != nil {
		return ports.CANMessage{}, fmt.Errorf("socketcan: read: %w", err)
	}

	return decodeFrame(buf[:n])
}

func encodeFrame(msg ports.CANMessage) []byte {
	buf := make([]byte, frameSize)

	id := msg.ID & effMask
	if msg.ExtID {
		id |= effFlag
	}

	binary.LittleEndian.PutUint32(buf[0:4], id)

	n := len(msg.Buf)
	if n > maxData {
		n = maxData
	}

	buf[4] = byte(n)
	copy(buf[dataOffset:dataOffset+n], msg.Buf[:n])

	return buf
}

func decodeFrame(buf []byte) (ports.CANMessage, error) {
	if len(buf) < dataOffset {
		return ports.CANMessage{}, fmt.Errorf("socketcan: short frame (%d bytes)", len(buf))
	}

	id := binary.LittleEndian.Uint32(buf[0:4])
	ext := id&effFlag != 0
	id &= effMask

	length := int(buf[4])
	if length > len(buf)-dataOffset {
		length = len(buf) - dataOffset
	}

	return ports.CANMessage{
		ExtID: ext,
		ID:    id,
		Buf:   append([]byte(nil), buf[dataOffset:dataOffset+length]...),
	}, nil
}
