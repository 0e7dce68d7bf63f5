// Package perr defines the closed set of operation outcomes used across
// plumCore's core packages, instead of a language-specific exception
// hierarchy or an ad hoc per-package error type.
package perr

import "errors"

// Sentinel outcomes. These are the only failure modes any plumCore core
// operation may report; core packages return one of these (wrapped
// with context via fmt.Errorf("%w: ...")) or nil for Ok.
var (
	// Void means there was no work to do, or no data was available
	// (e.g. a channel receive that timed out with nothing pending).
	Void = errors.New("void")

	// BadArg means a caller-supplied argument violates a precondition
	// (e.g. an empty universe key).
	BadArg = errors.New("bad-arg")

	// BadState means the operation is not valid in the component's
	// current state.
	BadState = errors.New("bad-state")

	// TooBig means a payload exceeds a size bound (e.g. a payload
	// longer than the channel MTU) or a destination buffer was too
	// small to hold a result.
	TooBig = errors.New("too-big")

	// Timeout means a bounded wait elapsed before the operation could
	// complete.
	Timeout = errors.New("timeout")

	// InvalidID signals a channel-ID collision; the caller should
	// invalidate and rederive on the next housekeeping tick.
	InvalidID = errors.New("invalid-id")

	// Mac means SIV/MAC verification failed; the output has been
	// zeroed by the caller.
	Mac = errors.New("mac")

	// Decode means a payload could not be parsed against the expected
	// schema.
	Decode = errors.New("decode")

	// Fail is a catch-all for operational failures (I/O, exhaustion)
	// that do not fit a more specific outcome.
	Fail = errors.New("fail")
)
