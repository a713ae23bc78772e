// Package miaerr defines the closed set of error kinds produced by the
// MiAssistant core. Every operation in internal/protocol, internal/sideload,
// internal/validate and internal/deviceinfo returns one of these; an
// underlying cause, when there is one, is exposed through Unwrap so callers
// can still errors.As/Is through to it.
package miaerr

import "fmt"

// Kind identifies which of the closed set of failure categories an Error
// belongs to.
type Kind int

const (
	// KindDeviceNotFound means no USB interface exposing the ADB class/subclass
	// pair could be found.
	KindDeviceNotFound Kind = iota
	// KindUSB means a USB operation (enumerate, open, claim, read, write,
	// timeout) failed.
	KindUSB
	// KindProtocol means an ADB frame or sideload block violated the wire
	// protocol (bad magic, oversized payload, unexpected command, unparsable
	// block number).
	KindProtocol
	// KindIO means a local file or journal operation failed.
	KindIO
	// KindHTTP means the validation POST failed at the network/HTTP layer.
	KindHTTP
	// KindCrypto means AES or base64 decoding failed during validation.
	KindCrypto
	// KindInvalidResponse means decryption succeeded but the plaintext did not
	// contain the expected JSON shape.
	KindInvalidResponse
	// KindOther is the fallback for unanticipated failures.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindDeviceNotFound:
		return "DeviceNotFound"
	case KindUSB:
		return "Usb"
	case KindProtocol:
		return "Protocol"
	case KindIO:
		return "Io"
	case KindHTTP:
		return "Http"
	case KindCrypto:
		return "Crypto"
	case KindInvalidResponse:
		return "InvalidResponse"
	default:
		return "Other"
	}
}

// Error is the concrete error type returned by the core. Detail carries a
// human-readable message; Err, when non-nil, is the wrapped underlying
// cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: cause}
}

// DeviceNotFound reports that no compatible ADB device is attached.
func DeviceNotFound() *Error {
	return &Error{Kind: KindDeviceNotFound, Detail: "connect device in recovery/MiAssistant mode"}
}

// USB wraps a USB collaborator failure.
func USB(cause error, format string, args ...interface{}) *Error {
	return newf(KindUSB, cause, format, args...)
}

// Protocol reports a wire-protocol violation.
func Protocol(format string, args ...interface{}) *Error {
	return newf(KindProtocol, nil, format, args...)
}

// IO wraps a local filesystem failure.
func IO(cause error, format string, args ...interface{}) *Error {
	return newf(KindIO, cause, format, args...)
}

// HTTP wraps a network/HTTP failure during validation.
func HTTP(cause error, format string, args ...interface{}) *Error {
	return newf(KindHTTP, cause, format, args...)
}

// Crypto wraps an AES or base64 failure during validation.
func Crypto(cause error, format string, args ...interface{}) *Error {
	return newf(KindCrypto, cause, format, args...)
}

// InvalidResponse reports a validation response that decoded but did not
// have the expected shape.
func InvalidResponse(format string, args ...interface{}) *Error {
	return newf(KindInvalidResponse, nil, format, args...)
}

// Other is the fallback for unanticipated failures.
func Other(cause error, format string, args ...interface{}) *Error {
	return newf(KindOther, cause, format, args...)
}
