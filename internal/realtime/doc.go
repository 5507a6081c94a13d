// Package realtime serves the websocket gateway through which browsers join
// rooms and receive events produced by background jobs.
package realtime
