package rpc

import (
	"errors"
	"fmt"

	"github.com/untoldecay/flowctl/internal/storage"
)

var (
	// ErrDaemonUnavailable indicates that the flow daemon could not be reached.
	ErrDaemonUnavailable = errors.New("daemon unavailable")

	// ErrInvalidArgs indicates a request whose arguments failed validation.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrVersionMismatch indicates a client the daemon refuses to serve.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrUnknownOperation indicates an operation the daemon does not serve.
	ErrUnknownOperation = errors.New("unknown operation")
)

// errorResponse encodes err so the client can rebuild the same sentinel.
func errorResponse(err error) Response {
	resp := Response{Error: err.Error()}
	var rule *storage.RuleError
	var coll *storage.CollisionError
	switch {
	case errors.As(err, &rule):
		resp.Code, resp.Rule, resp.Detail = CodeInvariant, rule.Rule, rule.Detail
	case errors.As(err, &coll):
		resp.Code, resp.What, resp.Holder = CodeCollision, coll.What, coll.Holder
	case errors.Is(err, storage.ErrNotFound):
		resp.Code = CodeNotFound
	case errors.Is(err, storage.ErrInvariant):
		resp.Code = CodeInvariant
	case errors.Is(err, storage.ErrCollision):
		resp.Code = CodeCollision
	case errors.Is(err, ErrInvalidArgs):
		resp.Code = CodeInvalidArgs
	case errors.Is(err, ErrVersionMismatch):
		resp.Code = CodeVersionMismatch
	case errors.Is(err, ErrUnknownOperation):
		resp.Code = CodeUnknownOp
	}
	return resp
}

// remoteError carries the daemon's message and unwraps to the error the
// daemon-side service returned.
type remoteError struct {
	msg   string
	cause error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.cause }

// decodeError rebuilds the error described by a failed response.
func decodeError(resp *Response) error {
	var cause error
	switch resp.Code {
	case CodeInvariant:
		if resp.Rule != "" {
			cause = &storage.RuleError{Rule: resp.Rule, Detail: resp.Detail}
		} else {
			cause = storage.ErrInvariant
		}
	case CodeCollision:
		if resp.What != "" {
			cause = &storage.CollisionError{What: resp.What, Holder: resp.Holder}
		} else {
			cause = storage.ErrCollision
		}
	case CodeNotFound:
		cause = storage.ErrNotFound
	case CodeInvalidArgs:
		cause = ErrInvalidArgs
	case CodeVersionMismatch:
		cause = ErrVersionMismatch
	case CodeUnknownOp:
		cause = ErrUnknownOperation
	default:
		return fmt.Errorf("operation failed: %s", resp.Error)
	}
	return &remoteError{msg: resp.Error, cause: cause}
}
