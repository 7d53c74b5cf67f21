package delta

import "errors"

// Error kinds surfaced by the encoder and applier.
var (
	// ErrInvalidInput is returned when an API boundary is given a
	// non-buffer argument or an integer that does not fit the
	// documented range (e.g. a size above 32 bits).
	ErrInvalidInput = errors.New("delta: invalid input")

	// ErrSourceMismatch is returned by Apply when the delta's declared
	// source size disagrees with the actual source length.
	ErrSourceMismatch = errors.New("delta: source size mismatch")

	// ErrTruncatedDelta is returned by Apply when the delta ends before
	// the declared target size has been produced.
	ErrTruncatedDelta = errors.New("delta: truncated delta")

	// ErrExtraData is returned by Apply when bytes remain in the delta
	// after the declared target size has been produced, or when an
	// instruction produces bytes beyond the declared target size.
	ErrExtraData = errors.New("delta: extra data after target")

	// ErrInvalidOpcode is returned by Apply on a zero code byte, which
	// is not a legal COPY or INSERT instruction.
	ErrInvalidOpcode = errors.New("delta: invalid opcode")
)
