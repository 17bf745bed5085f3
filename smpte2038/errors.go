package smpte2038

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Parse and the Packetizer. Compare with
// errors.Is; parse failures arrive wrapped in a *ParseError.
var (
	ErrTooShort            = errors.New("smpte2038: buffer too short")
	ErrInvalidStartCode    = errors.New("smpte2038: invalid PES start code")
	ErrUnsupportedStreamID = errors.New("smpte2038: unsupported stream id")
	ErrMalformedHeader     = errors.New("smpte2038: malformed PES header")
	ErrMalformedLine       = errors.New("smpte2038: malformed ancillary data line")
	ErrInvalidState        = errors.New("smpte2038: invalid packetizer state")
	ErrNotAllocated        = fmt.Errorf("%w: packetizer not allocated", ErrInvalidState)
	ErrOutOfMemory         = errors.New("smpte2038: out of memory")
	ErrPacketTooLarge      = errors.New("smpte2038: PES packet length exceeds 16 bits")
)

// ParseError records the field being decoded when Parse failed. Line is
// the zero-based index of the ancillary line, or -1 for PES header fields.
type ParseError struct {
	Field string
	Line  int
	Err   error
}

func (e *ParseError) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%v: %s", e.Err, e.Field)
	}
	return fmt.Sprintf("%v: line %d: %s", e.Err, e.Line, e.Field)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func headerError(field string, err error) error {
	return &ParseError{Field: field, Line: -1, Err: err}
}

func lineError(line int, field string) error {
	return &ParseError{Field: field, Line: line, Err: ErrMalformedLine}
}

// ErrorKind classifies an error returned by this package.
type ErrorKind int

// Error kinds, one per sentinel error.
const (
	KindNone ErrorKind = iota
	KindTooShort
	KindInvalidStartCode
	KindUnsupportedStreamID
	KindMalformedHeader
	KindMalformedLine
	KindNotAllocated
	KindInvalidState
	KindOutOfMemory
	KindPacketTooLarge
	KindUnknown
)

var kindNames = [...]string{
	KindNone:                "none",
	KindTooShort:            "too short",
	KindInvalidStartCode:    "invalid start code",
	KindUnsupportedStreamID: "unsupported stream id",
	KindMalformedHeader:     "malformed header",
	KindMalformedLine:       "malformed line",
	KindNotAllocated:        "not allocated",
	KindInvalidState:        "invalid state",
	KindOutOfMemory:         "out of memory",
	KindPacketTooLarge:      "packet too large",
	KindUnknown:             "unknown",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
	return kindNames[k]
}

// kindOrder lists sentinels most specific first; ErrNotAllocated must be
// matched before the ErrInvalidState it wraps.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTooShort, KindTooShort},
	{ErrInvalidStartCode, KindInvalidStartCode},
	{ErrUnsupportedStreamID, KindUnsupportedStreamID},
	{ErrMalformedHeader, KindMalformedHeader},
	{ErrMalformedLine, KindMalformedLine},
	{ErrNotAllocated, KindNotAllocated},
	{ErrInvalidState, KindInvalidState},
	{ErrOutOfMemory, KindOutOfMemory},
	{ErrPacketTooLarge, KindPacketTooLarge},
}

// Kind maps err onto an ErrorKind. A nil error is KindNone; errors that
// did not originate here are KindUnknown.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
