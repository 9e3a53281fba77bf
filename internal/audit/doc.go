// Package audit relays security events to pluggable sinks.
//
// [Dispatcher] buffers events and delivers them from one goroutine, either
// dropping or blocking when the buffer is full. Which events get emitted is
// decided by the caller.
package audit
