package model

import "fmt"

// Failure is a request outcome that is rendered to the caller as a JSON
// error body with Status as the HTTP status code.
type Failure struct {
	Status  int    `json:"-"`
	Message string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Cause   error  `json:"-"`
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%d %s: %v", f.Status, f.Message, f.Cause)
	}
	if f.Detail != "" {
		return fmt.Sprintf("%d %s: %s", f.Status, f.Message, f.Detail)
	}
	return fmt.Sprintf("%d %s", f.Status, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// NewFailure creates a Failure without an underlying cause.
func NewFailure(status int, message, detail string) *Failure {
	return &Failure{Status: status, Message: message, Detail: detail}
}

// WrapFailure creates a Failure whose detail is taken from cause.
func WrapFailure(status int, message string, cause error) *Failure {
	f := &Failure{Status: status, Message: message, Cause: cause}
	if cause != nil {
		f.Detail = cause.Error()
	}
	return f
}
