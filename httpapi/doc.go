// Package httpapi exposes the goVerify engine over HTTP.
//
// [NewRouter] mounts four JSON endpoints under /v1/verifications (issue,
// resend, verify, status) plus a purposes listing and /health. Request
// bodies are validated with go-playground/validator before they reach the
// engine. Engine errors map to status codes as follows:
//
//	validation, cooldown, wrong code   400
//	missing or invalid caller token    401
//	nothing pending                    404
//	resends exhausted, superseded,
//	already verified                   409
//	expired                            410
//	locked                             423
//	rate limited                       429
//	backend unavailable                503 (retryable)
//
// Error bodies always carry a machine-readable code plus the hint fields
// for that code, such as retryAfterSeconds or attemptsRemaining.
//
// # What this package must NOT do
//
//   - Decide verification outcomes. The engine owns every state change.
//   - Log subjects, codes or tokens.
package httpapi
