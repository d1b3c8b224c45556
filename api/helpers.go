package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/anonpoll/log"
	"github.com/vocdoni/anonpoll/types"
)

// maxBodySize bounds the request bodies, proofs included.
const maxBodySize = 1 << 20

// httpWriteJSON helper function allows to write a JSON response.
func httpWriteJSON(w http.ResponseWriter, data any) {
	jdata, err := json.Marshal(data)
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	n, err := w.Write(jdata)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
	log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(jdata), "\"", ""))
}

// httpWriteOK helper function allows to write an OK response.
func httpWriteOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("\n")); err != nil {
		log.Warnw("failed to write on response", "error", err)
	}
}

// decodeBody decodes the JSON body of r into v, writing the error response
// if it fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return false
	}
	return true
}

// userID returns the authenticated user of the request, or an empty string.
// The voting service rejects an empty user where one is required.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

// hexParam decodes a hex URL parameter.
func hexParam(r *http.Request, name string) (types.HexBytes, error) {
	b, err := types.HexStringToHexBytes(chi.URLParam(r, name))
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return b, nil
}

// bigIntParam decodes a decimal or 0x prefixed integer URL parameter.
func bigIntParam(r *http.Request, name string) (*types.BigInt, error) {
	v := new(types.BigInt)
	if err := v.UnmarshalText([]byte(chi.URLParam(r, name))); err != nil {
		return nil, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}
