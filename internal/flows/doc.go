// Package flows holds the orchestration behind each token operation of the
// gate: login, refresh rotation, logout and password change.
//
// Each Run* function takes a dependency struct and returns a result carrying a
// failure kind. The root package maps kinds to its public errors. Flows keep
// no state between calls and never import the root package.
package flows
