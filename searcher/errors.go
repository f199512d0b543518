package searcher

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParameters is returned before any network call when the bundle lacks a required field.
	ErrMissingParameters = errors.New("missing bundle parameters")
	// ErrBundleNotIncluded is returned by PendingBundle when the target block does not contain the bundle.
	ErrBundleNotIncluded = errors.New("bundle was not included in target block")
	// ErrEmptyResult is returned when the relay answered with a null result for a call that must carry data.
	ErrEmptyResult = errors.New("relay returned empty result")
	// ErrInvalidResponse is returned when the response envelope has neither result nor error.
	ErrInvalidResponse = errors.New("invalid relay response")

	ErrNoSimulation  = fmt.Errorf("%w: %s", ErrEmptyResult, CallBundleMethod)
	ErrNoBundleStats = fmt.Errorf("%w: %s", ErrEmptyResult, GetBundleStatsMethod)
	ErrNoUserStats   = fmt.Errorf("%w: %s", ErrEmptyResult, GetUserStatsMethod)

	ErrNoRelays = errors.New("no relays configured")
)

// ClientError is a 4xx answer from the relay. The request was rejected and should not be retried as is.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error (status %d): %s", e.StatusCode, e.Body)
}

// TransportError is a failure to reach the relay or a 5xx answer. It is safe to retry.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SigningError means the configured signer could not sign the request body.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("failed to sign relay request: %v", e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// DecodeError carries the raw response body that could not be decoded.
type DecodeError struct {
	Err  error
	Body string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode relay response: %v. Response: %s", e.Err, e.Body)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingParameters, field)
}
