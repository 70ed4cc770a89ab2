// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package httpapi implements the receiver's HTTP control surface: a small
// set of chi-routed endpoints the sender calls to enumerate the
// destination tree and to upload creates, patches, and deletes.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response shape every endpoint answers with,
// except the 404 for an unrecognized route.
type envelope struct {
	Status string      `json:"status"`
	Result interface{} `json:"result"`
}

func writeSuccess(w http.ResponseWriter, result interface{}) {
	writeEnvelope(w, http.StatusOK, envelope{Status: "success", Result: result})
}

// writeError always answers HTTP 200 with a JSON error status, matching
// the original's convention: the sender's client only inspects the
// "status" field, never the HTTP status code, except to detect a missing
// route (404).
func writeError(w http.ResponseWriter, message string) {
	writeEnvelope(w, http.StatusOK, envelope{Status: "error", Result: message})
}

func writeEnvelope(w http.ResponseWriter, code int, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(e)
}
