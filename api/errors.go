package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/voting"
)

// Error is used by handler functions to wrap errors, assigning a unique error code
// and also specifying which HTTP Status should be used.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field HTTPstatus is ignored.
//
// Example output: {"error":"forbidden: already voted","code":40009}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// Error returns the Message contained inside the APIerror
func (e Error) Error() string {
	return e.Err.Error()
}

// Write serializes the error as JSON with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(append(msg, '\n')); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// Withf returns a copy of APIerror with the Sprintf formatted string appended at the end of e.Err
func (e Error) Withf(format string, args ...any) Error {
	return e.With(fmt.Sprintf(format, args...))
}

// With returns a copy of APIerror with the string appended at the end of e.Err
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of APIerror with err.Error() appended at the end of e.Err
func (e Error) WithErr(err error) Error {
	return e.With(err.Error())
}

// errorFor maps an error of the voting service to its API error. The reason
// sent to the client is the service error message, which never carries
// internal detail; any error outside the voting taxonomy becomes a generic
// internal error and is only logged.
func errorFor(err error) Error {
	var apiErr Error
	switch {
	case errors.Is(err, voting.ErrCryptoFailure):
		apiErr = ErrInvalidSignature
	case errors.Is(err, voting.ErrUnauthorized):
		apiErr = ErrUnauthorized
	case errors.Is(err, voting.ErrForbidden):
		apiErr = ErrForbidden
	case errors.Is(err, voting.ErrNotFound):
		apiErr = ErrResourceNotFound
	case errors.Is(err, voting.ErrValidation):
		apiErr = ErrInvalidRequest
	case errors.Is(err, voting.ErrInvalidState):
		apiErr = ErrInvalidState
	case errors.Is(err, voting.ErrConflict):
		apiErr = ErrConflict
	case errors.Is(err, voting.ErrUnsupported):
		apiErr = ErrNotImplemented
	default:
		log.Errorw(err, "unexpected voting service error")
		return ErrGenericInternalServerError
	}
	apiErr.Err = err
	return apiErr
}
