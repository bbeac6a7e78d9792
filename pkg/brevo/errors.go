package brevo

import (
	"errors"
	"fmt"
)

const (
	StageBeforeRequest = "before-request"
	StageRequest       = "request"
	StageAfterRequest  = "after-request"

	TypeMissingKey  = "missing-api-key"
	TypeRateLimit   = "rate-limit"
	TypeJSONEncode  = "json"
	TypeRequestPrep = "request-prep"
	TypeIO          = "io"
	TypeHTTPStatus  = "not-ok-http-status"
)

// ErrMissingAPIKey is returned by Submit when the client was built without
// an API key.
var ErrMissingAPIKey = errors.New("BREVO_API_KEY must be set")

// APIError describes a failed call to the contacts API and the stage it
// failed in.
type APIError struct {
	Stage      string
	Type       string
	SourceErr  error
	Body       []byte
	StatusCode int
}

var _ error = &APIError{}

func (e *APIError) Error() string {
	var err string
	if e.SourceErr != nil {
		err = e.SourceErr.Error()
	} else {
		err = string(e.Body)
	}
	return fmt.Sprintf(
		"brevo request failed during '%s' stage with error type '%s', httpStatus: '%d'; cause: %v",
		e.Stage, e.Type, e.StatusCode, err,
	)
}

func (e *APIError) Unwrap() error {
	return e.SourceErr
}
