// Package backend discovers and queries pluggable search backends: desktop
// applications that answer glint queries over the socket protocol in
// package ipc.
//
// A backend is described by an INI file dropped into a well-known
// directory. Queries follow a two-call shape: GetInitialResultSet maps the
// search terms to opaque result ids, GetResultMetas resolves the ids the
// launcher actually wants to display. Activation of a chosen result is a
// third, fire-and-forget call.
package backend

import "github.com/glint-sh/glint/internal/icon"

// Backend identifies one discovered search backend. Immutable once
// discovered.
type Backend struct {
	// AppID is the backend's identity: the exclusion key and the stem of
	// the .desktop file consulted for the fallback icon.
	AppID string

	// Socket is the resolved unix socket path the backend listens on.
	Socket string

	// Service is the endpoint path addressed inside the peer.
	Service string

	// AppIcon is the owning application's icon name, used when a result
	// carries no icon of its own. May be empty.
	AppIcon string
}

// Result is one item a backend returned for a query. Never mutated after
// creation.
type Result struct {
	// ID is the backend's opaque identifier for this item, echoed back on
	// activation.
	ID string

	Name        string
	Description string

	// Icon is the decoded per-result icon, nil when the backend sent none
	// or sent something unrecognizable.
	Icon icon.Icon

	// Backend is the owning backend, kept for the fallback icon and the
	// activation address.
	Backend Backend
}
