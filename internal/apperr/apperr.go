// Package apperr gives every error kind the transaction index and
// Stratum V2 pool core can raise a stable string code, in the spirit of
// the teacher's typed errors (ValidationError, RPCError,
// BlockRejectedError) but collapsed into one comparable type so callers
// across package boundaries can branch on Code without importing a
// dozen sentinel types.
package apperr

import "fmt"

// Code identifies a specific error condition. Codes are stable across
// releases; callers may match on them (e.g. to decide HTTP status in
// the query façade).
type Code string

const (
	KvIoError          Code = "kv_io_error"
	SerializationError Code = "serialization_error"
	CorruptEntry       Code = "corrupt_entry"
	NotFound           Code = "not_found"
	IndexDisabled      Code = "index_disabled"
	UnsupportedVersion Code = "unsupported_version"
	AlreadyConfigured  Code = "already_configured"
	MinerNotRegistered Code = "miner_not_registered"
	UnknownChannel     Code = "unknown_channel"
	StaleJob           Code = "stale_job"
	MalformedFrame     Code = "malformed_frame"
	InsufficientData   Code = "insufficient_data"
	UnknownChain       Code = "unknown_chain"
	ChainNotEnabled    Code = "chain_not_enabled"
	ChannelExists      Code = "channel_exists"
	ChannelMissing     Code = "channel_missing"
)

// Error is the concrete error type carried through the index and
// stratum packages. It wraps an optional underlying cause so fmt's
// %w / errors.Unwrap chain stays intact.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that carries cause as its Unwrap target.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Package-level constructors, one per Code, so callers read
// apperr.NotFoundf("tx %x", hash) the way the teacher constructs
// &ValidationError{Reason: ...} inline at the call site.

func KvIoErrorf(format string, args ...any) *Error {
	return New(KvIoError, fmt.Sprintf(format, args...))
}

func SerializationErrorf(format string, args ...any) *Error {
	return New(SerializationError, fmt.Sprintf(format, args...))
}

func CorruptEntryf(format string, args ...any) *Error {
	return New(CorruptEntry, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func IndexDisabledf(format string, args ...any) *Error {
	return New(IndexDisabled, fmt.Sprintf(format, args...))
}

func UnsupportedVersionf(format string, args ...any) *Error {
	return New(UnsupportedVersion, fmt.Sprintf(format, args...))
}

func AlreadyConfiguredf(format string, args ...any) *Error {
	return New(AlreadyConfigured, fmt.Sprintf(format, args...))
}

func MinerNotRegisteredf(format string, args ...any) *Error {
	return New(MinerNotRegistered, fmt.Sprintf(format, args...))
}

func UnknownChannelf(format string, args ...any) *Error {
	return New(UnknownChannel, fmt.Sprintf(format, args...))
}

func StaleJobf(format string, args ...any) *Error {
	return New(StaleJob, fmt.Sprintf(format, args...))
}

func MalformedFramef(format string, args ...any) *Error {
	return New(MalformedFrame, fmt.Sprintf(format, args...))
}

func InsufficientDataf(format string, args ...any) *Error {
	return New(InsufficientData, fmt.Sprintf(format, args...))
}

func UnknownChainf(format string, args ...any) *Error {
	return New(UnknownChain, fmt.Sprintf(format, args...))
}

func ChainNotEnabledf(format string, args ...any) *Error {
	return New(ChainNotEnabled, fmt.Sprintf(format, args...))
}

func ChannelExistsf(format string, args ...any) *Error {
	return New(ChannelExists, fmt.Sprintf(format, args...))
}

func ChannelMissingf(format string, args ...any) *Error {
	return New(ChannelMissing, fmt.Sprintf(format, args...))
}

// Is reports whether err is an *Error with the given code, unwrapping
// through any error chain to find one.
func Is(err error, code Code) bool {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
