// Package app assembles the ridekit process: configuration, connections, the
// queue worker and scheduler, and the realtime gateway.
package app
