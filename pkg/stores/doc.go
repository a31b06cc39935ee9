// Package stores persists layer activity to SQLite. The journal records
// every state transition and every completed identify request so they can
// be inspected after the fact; it plugs into a record as a layer.Observer.
package stores
