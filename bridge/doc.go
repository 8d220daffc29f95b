// Package bridge connects the serial reader to the outputs.
//
// For every line the serial driver reads, HandleLine:
//
//  1. parses the sample value (processor/sample)
//  2. updates the five smoothed bands (processor/band)
//  3. stamps a telemetry.Event with the current time
//  4. calls Broadcast on each sink in registration order
//
// Sinks run on the reader goroutine, so a sink that blocks stalls ingestion.
// The hub and the optional sinks all hand events off through bounded queues
// or do constant work. Lines that do not parse are counted and otherwise
// ignored.
package bridge
