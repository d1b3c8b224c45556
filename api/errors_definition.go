//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the user's fault,
// and they return HTTP Status 4XX, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 501 or 503.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill it in: that code was used in the past and shouldn't be reused.
// There's no correlation between Code and HTTP Status.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody      = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrInvalidSignature   = Error{Code: 40005, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid signature or proof")}
	ErrMalformedParam     = Error{Code: 40006, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed URL parameter")}
	ErrPollNotFound       = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("poll not found")}
	ErrUnauthorized       = Error{Code: 40008, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("unauthorized")}
	ErrForbidden          = Error{Code: 40009, HTTPstatus: http.StatusForbidden, Err: fmt.Errorf("forbidden")}
	ErrInvalidRequest     = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("invalid request")}
	ErrInvalidState       = Error{Code: 40011, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("invalid state")}
	ErrConflict           = Error{Code: 40012, HTTPstatus: http.StatusConflict, Err: fmt.Errorf("conflict")}
	ErrArtifactNotFound   = Error{Code: 40013, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("circuit artifact not found")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrNotImplemented             = Error{Code: 50003, HTTPstatus: http.StatusNotImplemented, Err: fmt.Errorf("not implemented")}
)
