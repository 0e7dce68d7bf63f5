// Package ccrpc implements the CBOR-map-based typed accessor
// dispatcher used by every NBUS channel's endpoint 0, per spec.md
// §4.4.
package ccrpc

import (
	"sort"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/plumcore/plumcore/perr"
)

// ReqSize and RespSize bound the CBOR request/response buffers;
// exceeding either fails the whole map, per spec.md §4.4/§6.
const (
	ReqSize  = 256
	RespSize = 256
)

// Kind is an accessor's value type.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindBool
	KindFunction
)

// Accessor is one registered name in a channel's RPC dispatcher. Only
// the read/write (or Call, for function accessors) fields matching
// Kind need to be set; a nil handler for the kind requested fails
// that key with bad-state rather than panicking.
type Accessor struct {
	Name string
	Kind Kind

	ReadString  func() (string, error)
	WriteString func(string) error

	ReadInt  func() (int32, error)
	WriteInt func(int32) error

	ReadBool  func() (bool, error)
	WriteBool func(bool) error

	// Call implements a function accessor: it has no read or write
	// value, only a call effect.
	Call func() error
}

// Dispatcher holds one channel's registered accessors and processes
// CBOR request maps against them.
type Dispatcher struct {
	mu        sync.Mutex
	accessors map[string]*Accessor
}

// New constructs an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{accessors: make(map[string]*Accessor)}
}

// Register adds or replaces an accessor by name.
func (d *Dispatcher) Register(a *Accessor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accessors[a.Name] = a
}

// null is the single-byte CBOR encoding of the null simple value.
var null = []byte{0xf6}

// Dispatch decodes req as a CBOR map and processes each key against a
// registered accessor, returning the CBOR-encoded response map.
// Unknown keys are skipped silently; a key whose accessor rejects the
// request yields a CBOR null at that key rather than failing the
// whole map. Go's map decoding does not preserve CBOR key order, so
// keys are processed in sorted order; this is equivalent to the
// specified per-key dispatch since each key names an independent
// accessor with no cross-key ordering requirement.
func (d *Dispatcher) Dispatch(req []byte) ([]byte, error) {
	if len(req) > ReqSize {
		return nil, perr.TooBig
	}

	var in map[string]cbor.RawMessage
	if err := cbor.Unmarshal(req, &in); err != nil {
		return nil, perr.Decode
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]any, len(keys))

	for _, k := range keys {
		acc, ok := d.accessors[k]
		if !ok {
			continue
		}

		val, err := dispatchOne(acc, in[k])
		if err != nil {
			out[k] = nil
			continue
		}

		out[k] = val
	}

	resp, err := cbor.Marshal(out)
	if err != nil {
		return nil, perr.Fail
	}

	if len(resp) > RespSize {
		return nil, perr.TooBig
	}

	return resp, nil
}

func isNull(raw cbor.RawMessage) bool {
	return len(raw) == len(null) && raw[0] == null[0]
}

func dispatchOne(a *Accessor, raw cbor.RawMessage) (any, error) {
	if isNull(raw) {
		return dispatchRead(a)
	}

	return dispatchWrite(a, raw)
}

func dispatchRead(a *Accessor) (any, error) {
	switch a.Kind {
	case KindString:
		if a.ReadString == nil {
			return nil, perr.BadState
		}

		return a.ReadString()

	case KindInt:
		if a.ReadInt == nil {
			return nil, perr.BadState
		}

		return a.ReadInt()

	case KindBool:
		if a.ReadBool == nil {
			return nil, perr.BadState
		}

		return a.ReadBool()

	case KindFunction:
		if a.Call == nil {
			return nil, perr.BadState
		}

		return nil, a.Call()

	default:
		return nil, perr.BadArg
	}
}

func dispatchWrite(a *Accessor, raw cbor.RawMessage) (any, error) {
	switch a.Kind {
	case KindString:
		var s string
		if err := cbor.Unmarshal(raw, &s); err != nil {
			return nil, perr.Decode
		}

		if a.WriteString == nil {
			return nil, perr.BadState
		}

		if err := a.WriteString(s); err != nil {
			return nil, err
		}

		return s, nil

	case KindInt:
		var i int32
		if err := cbor.Unmarshal(raw, &i); err != nil {
			return nil, perr.Decode
		}

		if a.WriteInt == nil {
			return nil, perr.BadState
		}

		if err := a.WriteInt(i); err != nil {
			return nil, err
		}

		return i, nil

	case KindBool:
		var b bool
		if err := cbor.Unmarshal(raw, &b); err != nil {
			return nil, perr.Decode
		}

		if a.WriteBool == nil {
			return nil, perr.BadState
		}

		if err := a.WriteBool(b); err != nil {
			return nil, err
		}

		return b, nil

	default:
		// function accessors have no write form.
		return nil, perr.BadArg
	}
}
