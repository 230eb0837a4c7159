// Package identity implements the authentication, authorization, and
// user-lifecycle engine for a two-role (admin, student) application.
//
// The package wires four cooperating pieces: TokenService signs and
// verifies time-bounded JWTs, UserProvider checks credentials against
// the bun-backed user store, AccessGuard gates protected routes and
// resolves the acting user, and LifecycleManager applies update and
// delete rules, including the invariant that the system never drops to
// zero admins.
//
// Components are stateless; the bun database is the only shared mutable
// resource, and the one operation that needs cross-request ordering,
// deleting an admin, runs its count check and delete inside a single
// transaction.
package identity
