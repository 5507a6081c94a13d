// Package logger builds the process *slog.Logger and holds the attribute
// helpers shared by the queue, the fan-out hub and the job handlers.
//
// New picks a text or JSON handler from an environment preset:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "ridekit"),
//		logger.WithConfig(cfg.Log), // LOG_LEVEL, LOG_FORMAT
//		logger.WithContextExtractors(queue.LogExtractor(), requestid.LogExtractor()),
//	)
//	logger.SetAsDefault(log)
//
// Development logs text at debug level; staging and production log JSON at
// info level. Every record carries service and env.
//
// Context extractors run on each *Context call, so a handler logging with the
// job context gets the job group and a websocket command gets request_id
// without passing them around.
//
// Attribute helpers keep key names consistent: Error, JobID, Topic, Attempt,
// ScheduleKey, Room, ConnID, Component and friends. Error returns an
// empty attribute for a nil error, so
//
//	log.Info("batch committed", logger.Error(err))
//
// needs no nil check.
package logger
