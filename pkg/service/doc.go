// Package service runs the monitoring controller.
//
// A Monitor owns one STOMP session with the telemetry server and everything
// derived from it: the sensor roster, the latest readings, the alarm
// records and the warning lamp. A single event-loop goroutine owns that
// state. Transport callbacks, timers, pollers and operator commands post
// closures into the loop, so state transitions never race.
//
// Network I/O (roster fetches, connect, fan polling) runs off the loop and
// posts its result back.
//
// Lifecycle:
//
//	m, err := service.New(cfg, service.Deps{...})
//	m.OnEvent(func(e service.Event) { ... })
//	m.Start(ctx)
//	defer m.Stop()
//
// Resilience:
//
//   - The transport keeps heartbeats and per-topic resubscription.
//   - connection.Manager schedules full resyncs with linear backoff after a
//     session loss.
//   - The sensor health supervisor drops the session when half the sensors
//     go silent and forces a full resync when most of them do.
//   - The roster refresh keeps subscriptions in line with the collaborator.
package service
