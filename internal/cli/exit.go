package cli

import "fmt"

// ExitError carries a process exit code out of a command. The message, if
// any, is printed by main.
type ExitError struct {
	code    int
	message string
}

func exitf(code int, format string, args ...any) *ExitError {
	return &ExitError{code: code, message: fmt.Sprintf(format, args...)}
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.message == "" {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.message
}

func (e *ExitError) Code() int {
	if e == nil {
		return 1
	}
	return e.code
}

func (e *ExitError) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}
