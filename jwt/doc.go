// Package jwt signs and verifies the three token kinds goGate issues: access
// tokens carrying a principal snapshot, refresh tokens whose jti is the
// persisted record id, and reset tokens carrying a bare identity string.
//
// Every token carries a "typ" claim; a token is only accepted by the parser
// for its own purpose.
package jwt
