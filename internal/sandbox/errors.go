package sandbox

import "fmt"

// JSON-RPC error codes used by the sandbox.
const (
	codeInvalidParams = -32602
	codeServerError   = -32000
)

// rpcError is an error with a JSON-RPC code. The rpc server uses ErrorCode
// to fill the response's error object.
type rpcError struct {
	code int
	msg  string
}

func (e *rpcError) Error() string  { return e.msg }
func (e *rpcError) ErrorCode() int { return e.code }

func invalidParams(format string, args ...any) error {
	return &rpcError{code: codeInvalidParams, msg: fmt.Sprintf(format, args...)}
}

func serverError(format string, args ...any) error {
	return &rpcError{code: codeServerError, msg: fmt.Sprintf(format, args...)}
}
