// Package herrors implements horsed's error taxonomy: a stable classification
// of failures (§7) independent of the underlying Go error type.
package herrors

import "fmt"

// Kind classifies a horsed failure for logging and client-visible handling.
type Kind string

const (
	// IO covers local filesystem, socket, and pipe failures.
	IO Kind = "io"
	// Ssh covers transport-level failures from the SSH library.
	Ssh Kind = "ssh"
	// SshKey covers key parse/format failures.
	SshKey Kind = "ssh_key"
	// Database covers key-store persistence failures.
	Database Kind = "database"
	// Protocol covers framing/decoding/unknown-variant failures.
	Protocol Kind = "protocol"
	// Auth covers key-not-found / user-missing rejections.
	Auth Kind = "auth"
	// Child covers subprocess spawn failures or non-zero exits.
	Child Kind = "child"
	// Other is anything else, wrapped.
	Other Kind = "other"
)

// Error wraps a horsed failure with a stable Kind classification.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New constructs a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf constructs a classified error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e == nil {
		return "horsed error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("horsed: %s: %s failed", e.Kind, e.Op)
	}
	return fmt.Sprintf("horsed: %s error", e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IOErr constructs an IO-kind error.
func IOErr(op string, err error) *Error { return New(IO, op, err) }

// SshErr constructs an Ssh-kind error.
func SshErr(op string, err error) *Error { return New(Ssh, op, err) }

// SshKeyErr constructs an SshKey-kind error.
func SshKeyErr(op string, err error) *Error { return New(SshKey, op, err) }

// DatabaseErr constructs a Database-kind error.
func DatabaseErr(op string, err error) *Error { return New(Database, op, err) }

// ProtocolErr constructs a Protocol-kind error.
func ProtocolErr(op string, err error) *Error { return New(Protocol, op, err) }

// AuthErr constructs an Auth-kind error.
func AuthErr(op string, err error) *Error { return New(Auth, op, err) }

// ChildErr constructs a Child-kind error.
func ChildErr(op string, err error) *Error { return New(Child, op, err) }

// OtherErr constructs an Other-kind error.
func OtherErr(op string, err error) *Error { return New(Other, op, err) }
