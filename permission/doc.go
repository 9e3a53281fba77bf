// Package permission decides whether a principal may run a use case.
//
// A use case requires a set of roles. [Engine.Authorize] grants when the
// principal holds at least one of them, or when the requirement contains
// [RoleAuthenticated]. Principal roles are read through a TTL and
// capacity-bounded LRU cache in front of a [RoleStore].
//
// Stores: [MemoryRoleStore], [PostgresRoleStore], and [BreakerRoleStore]
// which wraps any store in a circuit breaker.
package permission
