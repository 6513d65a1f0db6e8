// Package api handles incoming HTTP requests, request validation, and
// response formatting for the queue and usage surfaces. It adapts HTTP
// concerns onto the queue engine and quota reconciler; no queue policy
// lives here.
package api
