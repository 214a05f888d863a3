package git

import "errors"

// Result is a uniform call outcome used where an
// operation's success or failure is itself data: batch
// items, fan-out collection, and operation history.
// Regular adapter and service methods return (T, error)
// instead.
type Result[T any] struct {
	OK   bool
	Data T
	Err  *Error
}

// OK wraps a successful outcome.
func OK[T any](data T) Result[T] {
	return Result[T]{OK: true, Data: data}
}

// Fail wraps a failed outcome.
func Fail[T any](err *Error) Result[T] {
	return Result[T]{Err: err}
}

// Wrap converts a (value, error) pair into a Result.
// A non-structured error is wrapped as CodeUnknown.
func Wrap[T any](data T, err error) Result[T] {
	if err == nil {
		return OK(data)
	}

	var ge *Error
	if !errors.As(err, &ge) {
		ge = NewError("", CodeUnknown, err.Error())
	}

	return Result[T]{Data: data, Err: ge}
}
