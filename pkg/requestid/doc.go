// Package requestid attaches a correlation ID to every HTTP request served by
// the realtime gateway.
//
// Middleware reuses a client supplied X-Request-ID header when it is a plain
// token and otherwise generates a UUID. The ID is echoed back in the response
// and stored in the request context, where LogExtractor picks it up so every
// record logged during the request (including websocket room joins) carries
// request_id.
//
//	log := logger.New(logger.WithContextExtractors(requestid.LogExtractor()))
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
package requestid
