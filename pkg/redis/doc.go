// Package redis connects to Redis with retries and exposes a health check.
//
// The client is used by the fan-out layer to carry events from worker
// processes to the realtime server over pub/sub.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	check := redis.Healthcheck(client)
package redis
