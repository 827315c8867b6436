// Package http is the HTTP transport for the license service.
//
// Two surfaces share one router. The client surface under /api/license is
// unauthenticated: activation and verification are called by installed
// software that holds no credential beyond its license key. The admin
// surface under /api/admin requires a bearer token and covers the full
// lifecycle (create, revoke, extend, unbind, reset, delete).
//
// All failures render as RFC 7807 problem details with a stable error_code
// extension that SDK clients branch on.
package http
