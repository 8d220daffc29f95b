// Package websocket provides the WebSocket push transport for telemetry frames.
//
// # Overview
//
// Hub serves the fixed path /eeg. Every upgraded connection becomes a
// subscriber; every call to Broadcast serialises one telemetry.Event once and
// offers the identical bytes to each open subscriber.
//
// # Delivery Semantics
//
//   - At most once. No acknowledgement, no retry.
//   - No replay. A subscriber only receives events broadcast after it joined.
//   - Non-blocking. Broadcast puts the frame into a bounded per-subscriber
//     outbox and moves on. A full outbox drops that frame for that subscriber
//     only and increments frames_dropped_total.
//   - Ordered. Each subscriber has exactly one writer goroutine draining its
//     outbox, so frames reach it in broadcast order.
//
// # Subscriber Lifecycle
//
//  1. Client connects to ws://host:port/eeg
//  2. The Hub registers it and starts a reader and a writer goroutine
//  3. The writer sends frames and a ping every PingInterval
//  4. A read error, close frame, write error or missed pong removes it
//
// Removing one subscriber never affects the others.
//
// # Testing Without a Network
//
// Anything implementing Sink can be registered with Subscribe:
//
//	hub.Subscribe(fake)
//	hub.Broadcast(ctx, ev)
//
// # Metrics
//
// With a MetricsRegistry the Hub exports under eegbridge_websocket_:
// subscribers, connections_total, disconnections_total{reason},
// frames_sent_total, frames_dropped_total, bytes_sent_total,
// broadcast_duration_seconds and errors_total{error_type}.
package websocket
