// Package console provides the console device registry for conmux.
//
// The registry is the central catalogue of character-console endpoints
// in a conmux process. Drivers construct a Device bound to their own
// byte-oriented read/write implementation and register it exactly once;
// thereafter the registry multiplexes the process-wide standard stream
// across all devices flagged for it.
//
// # Key Types
//
//   - Ops: The capability contract every backend implements (blocking
//     all-or-nothing Out, non-blocking In)
//   - Device: One registered console endpoint (id, name, role flags, ops)
//   - Registry: Ordered device collection with broadcast output,
//     aggregate input, and direct per-device access
//
// # Standard stream roles
//
// Each device carries a flag set over {FlagStdin, FlagStdout}. Broadcast
// writes visit every FlagStdout device in registration order; aggregate
// reads visit every FlagStdin device in registration order until the
// request is filled. The first device registered without any explicit
// flags becomes the default standard stream (both roles); this default
// assignment fires at most once per registry.
//
// # Usage
//
//	registry := console.NewRegistry()
//	registry.SetLogger(log)
//
//	dev := console.NewDevice("ns16550", uart, 0)
//	registry.Register(dev)
//
//	registry.Out([]byte("hello\n")) // fan out to all stdout devices
//	n, _ := registry.In(buf)        // aggregate whatever input is ready
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Registration and iteration
// are guarded by a read-write mutex; backends are responsible for the
// safety of their own Out/In implementations.
package console
