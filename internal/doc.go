// Package internal generates the random identifiers behind refresh
// credentials: token ids and CSRF tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - cache: bounded TTL cache used for role lookups
//   - flows: the refresh, login, logout and password orchestrations
//   - rate: Redis fixed-window counters for refresh and reset throttling
package internal
