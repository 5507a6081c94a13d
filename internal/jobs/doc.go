// Package jobs implements the background jobs of the application: fanning
// out notifications, purging expired refresh tokens and materializing trips
// from their templates.
package jobs
