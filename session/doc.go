// Package session persists refresh-token records: one row per issued refresh
// credential, keyed by the random token id embedded in the token's jti.
//
// # Stores
//
// [RedisStore] keeps each record under its own key with a TTL matching the
// record expiry plus a per-principal SET index used by DeleteByPrincipal.
// [PostgresStore] keeps one row per record in the refresh_tokens table.
// [MemoryStore] is for tests and single-process development.
//
// # Architecture boundaries
//
// This package does not parse or sign tokens and does not decide whether a
// refresh may proceed; the Engine compares the stored value and CSRF token.
//
// # What this package must NOT do
//
//   - Import goGate, jwt, or permission (no upward imports).
//   - Treat an expired record as present.
package session
