package rename

import "fmt"

const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeLimitExceeded    = "LIMIT_EXCEEDED"
	CodeAllocationFailed = "ALLOCATION_FAILED"
	CodePackagingFailed  = "PACKAGING_FAILED"
)

// Error は利用者へ返す業務エラーです。Message はそのまま応答に使える文にします。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
