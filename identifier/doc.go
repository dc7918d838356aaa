// Package identifier canonicalizes the subjects a verification credential is
// bound to: phone numbers, email addresses and opaque principal ids.
//
// Normalization is deterministic and idempotent. The same function runs at
// issuance and at lookup time, so any two spellings of one identifier must
// produce the same canonical value:
//
//	"(404) 555-0100", "4045550100" and "+14045550100" all become "+14045550100"
//
// # What this package must NOT do
//
//   - Perform network lookups (carrier or MX validation belongs to callers).
//   - Import goVerify or any internal package.
package identifier
