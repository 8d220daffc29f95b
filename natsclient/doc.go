// Package natsclient wraps a single nats.go connection for publishing.
//
// # Connection States
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//	                    |
//	                    +-> CircuitOpen (after repeated Connect failures)
//
// After WithCircuitBreakerThreshold consecutive failures the circuit opens
// and Connect returns ErrCircuitOpen until the backoff elapses. The backoff
// doubles each round up to WithMaxBackoff.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry.CoreMetrics()),
//	    natsclient.WithRetryOnFailedConnect(true),
//	)
//	if err := client.Connect(ctx); err != nil {
//	    // log and carry on; Publish returns ErrNotConnected meanwhile
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "eeg.telemetry", payload)
//
// Publish never waits for the server. While the connection is down it
// returns ErrNotConnected immediately.
//
// # Metrics
//
// With WithMetrics the client keeps eegbridge_nats_connected and
// eegbridge_nats_reconnects_total current.
package natsclient
