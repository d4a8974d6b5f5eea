// Package httpapi serves the session endpoints over net/http:
//
//	POST /session/register       JSON body, returns the created user
//	POST /session/login          JSON body, returns {"token", "refreshToken"}
//	POST /session/refresh-token  Authorization-Refresh header, returns a new pair
//	POST /session/logout         Authorization-Refresh header
//	GET  /session/me             bearer token, returns the current user
//	GET  /healthz                ledger backend health
//
// [NewServer] wraps the routes with the CORS, client IP, authentication and
// authorization middleware. Engine errors are mapped to status codes by taxonomy
// root; internal faults are logged and answered with a generic message.
package httpapi
