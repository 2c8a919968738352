package tracker

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
)

// RejectedError marks a definitive failure of the tracked transaction, such
// as a mined receipt with a failed status. It is never retried.
type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transaction rejected"
}

func (e *RejectedError) Unwrap() error { return e.Err }

func Reject(reason string) error {
	return &RejectedError{Reason: reason}
}

func RejectWith(reason string, err error) error {
	return &RejectedError{Reason: reason, Err: err}
}

func IsRejected(err error) (string, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Error(), true
	}
	return "", false
}

type class int

const (
	classTransient class = iota
	classRejected
	classPermanent
)

// JSON-RPC codes that no amount of polling will fix.
var permanentRPCCodes = map[int]bool{
	-32600: true, // invalid request
	-32601: true, // method not found
	-32602: true, // invalid params
}

func classify(err error) class {
	if _, ok := IsRejected(err); ok {
		return classRejected
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classTransient
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && permanentRPCCodes[rpcErr.ErrorCode()] {
		return classPermanent
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden {
			return classPermanent
		}
	}
	if clierr.HasCode(err, clierr.CodeAuth) || clierr.HasCode(err, clierr.CodeUsage) {
		return classPermanent
	}
	return classTransient
}
