// Package httpserver runs an http.Handler until a context is cancelled and
// then shuts it down gracefully.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(srv.RunFunc(ctx, router))
//
// LivenessHandler and ReadinessHandler provide probe endpoints; readiness runs
// the supplied dependency checks such as pg.Healthcheck or redis.Healthcheck.
package httpserver
