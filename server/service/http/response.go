// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package http

import (
	"encoding/json"
	"net/http"

	"github.com/ringmeta/ringmeta/pkg/coderr"
	"github.com/ringmeta/ringmeta/pkg/log"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, response{Status: statusSuccess, Data: data})
}

// respondError answers with the http status of the code of err, 500 for uncoded errors.
func respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if c, ok := coderr.GetCauseCode(err); ok {
		code = c.ToHTTPCode()
	}
	writeJSON(w, code, response{Status: statusError, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("write http response failed", zap.Error(err))
	}
}

// statusRecorder keeps the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}
