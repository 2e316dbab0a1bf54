package onionrelay

import (
	"errors"
	"fmt"
)

// Error kinds returned by Client operations. Every failure of a request
// sent to the network matches exactly one of them with errors.Is. Input
// rejected before anything is sent is returned as the error of the package
// that rejected it, such as limits.ErrMessageTooLarge or
// protocol.ErrInvalidRecipient.
var (
	// ErrTimeout means the request did not complete in time on any path.
	ErrTimeout = errors.New("onionrelay: timeout")

	// ErrQuorumNotMet means too few swarm nodes confirmed the operation.
	ErrQuorumNotMet = errors.New("onionrelay: quorum not met")

	// ErrAuthenticationFailure means a layer or response failed
	// authenticated decryption, or a signature did not verify. It is not
	// retried.
	ErrAuthenticationFailure = errors.New("onionrelay: authentication failure")

	// ErrNoPathAvailable means no working path to the destination could
	// be obtained.
	ErrNoPathAvailable = errors.New("onionrelay: no path available")

	// ErrDestination means the request reached its destination, which
	// answered with an error status.
	ErrDestination = errors.New("onionrelay: destination error")
)

// RequestError carries the error kind of a failed request together with
// its cause. errors.Is matches both.
type RequestError struct {
	Kind error
	Err  error
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

// Unwrap returns the kind and the cause.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// DestinationError is the cause of an ErrDestination failure.
type DestinationError struct {
	Status int
	Body   []byte
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("destination answered status %d: %.128s", e.Status, e.Body)
}

func requestError(kind, err error) error {
	return &RequestError{Kind: kind, Err: err}
}
