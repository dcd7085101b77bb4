package webrisk

import "fmt"

// RemoteError is a failed call to the Web Risk API: either a non-2xx response
// (Status and Body set) or a transport failure such as a timeout (Err set).
type RemoteError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Err != nil && e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// CredentialError means the service-account key was malformed or rejected by
// the token endpoint.
type CredentialError struct {
	Msg string
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }
