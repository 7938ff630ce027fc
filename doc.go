// Package identity implements the identity lifecycle engine behind the
// Sleeved API: password registration gated by email verification, login,
// opaque bearer tokens, and social sign-in with account linking.
//
// Every workflow takes its collaborators (repositories, hasher, mailer,
// token service) as explicit dependencies, and every read-then-write runs
// inside a single store transaction.
package identity
