// Package fanout provides room-based event delivery to live connections.
//
// A Hub keeps connections and the rooms they joined. Publishing to a room
// delivers the event to every connection that is a member at publish time;
// connections joining later never see it. Each connection has a bounded
// buffer and a full buffer drops the event for that connection only, so a
// publisher never waits on a slow consumer.
//
// Basic usage:
//
//	hub := fanout.NewHub(fanout.WithBufferSize(64))
//	defer hub.Close()
//
//	conn, _ := hub.Connect("conn-1")
//	_ = hub.Join(conn.ID(), fanout.UserRoom("42"))
//
//	_ = hub.Publish(ctx, fanout.UserRoom("42"), fanout.KindNotificationCreated, payload)
//
//	for ev := range conn.Events() {
//		fmt.Println(ev.Kind, string(ev.Payload))
//	}
//
// Entitlement checks belong to the caller. Gateway wraps a Hub with an
// Authorizer and a small join/leave command protocol for transports such as
// websockets. RedisPublisher and RedisBridge carry events between processes
// so that workers can publish to connections held by a realtime server.
package fanout
