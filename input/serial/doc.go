// Package serial reads sample lines from the acquisition board.
//
// # Device States
//
//	Closed -> Opening -> Open -> Closed
//
// Start makes one open attempt. If it fails the driver logs the error, stays
// Closed and reports unhealthy, but Start returns nil so the WebSocket hub
// keeps serving. A read error while Open closes the device. With
// Config.Reconnect set, the driver then reopens it using retry.Reconnect();
// otherwise it stays Closed until the process restarts.
//
// # Reading
//
// One goroutine reads a line, calls LineHandler.HandleLine and waits for it
// before reading the next line. Every ProgressEvery accepted samples (500 by
// default) it logs the count, the raw value and alpha.
//
// # Testing
//
// The device is reached through an Opener, so tests supply a fake LineSource:
//
//	d, _ := serial.NewDriver(cfg, func(string, int) (serial.LineSource, error) {
//	    return fake, nil
//	}, handler, deps)
package serial
