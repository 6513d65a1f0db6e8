// Package generation defines the boundary with the external alt-text
// generation service: the Generator interface, its request/result types,
// and the error taxonomy that drives the queue's retry-or-fail decisions.
// Transport details live in platform packages so the application core never
// couples to a specific backend.
package generation
