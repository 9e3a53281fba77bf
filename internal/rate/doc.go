// Package rate holds the Redis fixed-window counters used to throttle refresh
// and password-reset attempts.
//
// Counters use INCR plus an EXPIRE on the first hit of each window. Keys:
//   - gr: refresh attempts per token id
//   - gp: password-reset attempts per identity
//   - gx: spent single-use token ids, SET NX with the token's remaining TTL
package rate
