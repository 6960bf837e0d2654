// Package ipc implements the line-delimited JSON protocol glint speaks with
// search backends over unix domain sockets.
//
// Every request and every response is a single JSON object on its own line.
// Requests carry a client-chosen id, the service path addressed inside the
// peer, a method name and parameters; responses echo the id with either a
// result or an error string. Responses may arrive in any order, so one
// shared connection multiplexes any number of concurrent calls.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// scanBufInitial is the starting size of per-connection line buffers.
	scanBufInitial = 64 * 1024
	// scanBufMax bounds a single protocol line.
	scanBufMax = 256 * 1024
)

// ErrClosed is returned by calls issued on (or interrupted by) a closed
// connection.
var ErrClosed = errors.New("ipc: connection closed")

// request is one client-to-backend line.
type request struct {
	ID      uint64 `json:"id"`
	Service string `json:"service"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is one backend-to-client line.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is an error reported by the backend itself, as opposed to a
// transport failure.
type RemoteError struct {
	Service string
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Service, e.Method, e.Message)
}
