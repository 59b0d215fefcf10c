// Package domain holds the core types of the realtime layer: the wire
// envelope, room keys, notification and comment models, and the sentinel
// errors shared across adapters.
package domain
