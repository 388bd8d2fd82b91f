// Package keeper keeps long-lived streaming sessions alive while the hosting
// application is backgrounded. It tracks active stream ids, holds a bounded
// execution guarantee while any are active, emits a periodic poll signal back
// to the application layer, and snapshots opaque stream state against a
// forced process teardown.
//
// The application layer talks to the keeper only through the command topics
// of a transport.Backend; it never shares memory with the execution unit.
package keeper
