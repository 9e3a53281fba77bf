// Package appstate gates requests on a time-scheduled application state.
//
// The schedule is an ordered list of entries kept as one document in a
// [Store]. [Gate.Resolve] picks the latest entry already in effect and falls
// back to INITIAL when none is. Reads go through a single-slot TTL cache
// that [Gate.Schedule] invalidates before returning.
package appstate
