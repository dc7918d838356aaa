// Package jwt signs and verifies caller tokens for the HTTP API. A caller
// token's subject names the calling service or session and keys the
// per-caller rate limits.
package jwt
