package rmac

import "github.com/plumcore/plumcore/perr"

// Record is rMAC's fixed tagged record — the "protobuf-equivalent"
// structure spec.md §4.8 names as the payload pbuf seals for every
// radio packet: source, destination, context, counter, time, data.
type Record struct {
	Source      uint32
	Destination uint32
	Context     uint8
	Counter     uint8
	TimeUS      uint64
	Data        []byte
}

// recordHeaderSize is the fixed-width prefix before Data: source(4) +
// destination(4) + context(1) + counter(1) + time(8).
const recordHeaderSize = 4 + 4 + 1 + 1 + 8

// EncodeRecord serializes r into its fixed tagged-record wire form.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, recordHeaderSize+len(r.Data))

	putU32(buf[0:4], r.Source)
	putU32(buf[4:8], r.Destination)
	buf[8] = r.Context
	buf[9] = r.Counter
	putU64(buf[10:18], r.TimeUS)
	copy(buf[recordHeaderSize:], r.Data)

	return buf
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(buf []byte) (Record, error) {
	if len(buf) < recordHeaderSize {
		return Record{}, perr.Decode
	}

	return Record{
		Source:      getU32(buf[0:4]),
		Destination: getU32(buf[4:8]),
		Context:     buf[8],
		Counter:     buf[9],
		TimeUS:      getU64(buf[10:18]),
		Data:        append([]byte(nil), buf[recordHeaderSize:]...),
	}, nil
}

func putU32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getU32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

func putU64(buf []byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

func getU64(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(buf[i]) << (8 * i)
	}

	return v
}
