// Package trace records the command transactions a driver exchanges with a
// transceiver over its serial bus.
//
// Every transaction produces one Event holding the bytes written and the
// bytes read back. Traces are independent from operational logging (slog):
// they are a complete, machine-readable record of bus traffic meant for
// post-mortem analysis of register level problems.
//
//	// Print transactions to the console.
//	cfg.Tracer = trace.NewSlogAdapter(slog.Default())
//
//	// Record to a CBOR file and print.
//	f, _ := trace.NewFileLogger("radio.trace")
//	cfg.Tracer = trace.NewMultiLogger(f, trace.NewSlogAdapter(slog.Default()))
package trace
