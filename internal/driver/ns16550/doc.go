// Package ns16550 implements a console backend for 16550-compatible
// UARTs accessed through memory-mapped registers.
//
// The driver speaks the classic register file: THR/RBR and the divisor
// latch at offset 0, LCR at 3, LSR at 5. Output polls the LSR
// transmit-empty bit before each byte and emits a carriage return ahead
// of every line feed; input checks the LSR receive-ready bit and
// returns immediately when nothing is pending, satisfying the
// non-blocking half of the console capability contract.
//
// Register access goes through the Bus interface so the same driver
// serves a real mapped device window (MappedBus over shared memory with
// an emulator or VMM) and the register model used in tests. Register
// shift and width handling follows the device-tree conventions for
// ns16550 nodes: the register index is shifted left by reg-shift and
// accessed at reg-io-width bytes.
package ns16550
