package ns16550

import (
	"encoding/binary"
	"fmt"
	"os"
	"syscall"
)

// Bus abstracts access to the UART register file. Implementations
// translate a register index into a read or write of the underlying
// device window.
type Bus interface {
	// Read returns the value of the register at the given index.
	Read(reg uint32) uint32

	// Write stores value into the register at the given index.
	Write(reg uint32, value uint32)
}

// Register access width in bytes. 1 is the device-tree default.
const (
	RegWidthDefault = 1
	RegShiftDefault = 0
)

// MappedBus implements Bus over a byte window, typically a
// memory-mapped device region shared with an emulator or VMM. The
// register index is shifted left by shift and accessed at width bytes,
// little-endian.
type MappedBus struct {
	window []byte
	shift  uint32
	width  uint32
	mapped bool
}

// NewMappedBus wraps an existing byte window. The window is borrowed;
// the caller keeps it alive for the life of the bus. The window must
// cover the whole register file up to LSR at the configured shift and
// width, since the driver polls LSR on every transfer.
func NewMappedBus(window []byte, shift, width uint32) (*MappedBus, error) {
	if len(window) == 0 {
		return nil, fmt.Errorf("ns16550: empty register window")
	}
	switch width {
	case 1, 2, 4:
	default:
		return nil, fmt.Errorf("ns16550: invalid register width %d", width)
	}
	need := uint64(regLSR)<<shift + uint64(width)
	if uint64(len(window)) < need {
		return nil, fmt.Errorf("ns16550: register window of %d bytes does not cover the register file (need %d for shift %d, width %d)",
			len(window), need, shift, width)
	}
	return &MappedBus{window: window, shift: shift, width: width}, nil
}

// OpenMappedBus maps size bytes of the file at path (a device window
// exported over shared memory) and returns a bus over the mapping.
// Close releases the mapping.
func OpenMappedBus(path string, size int, shift, width uint32) (*MappedBus, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening register window: %w", err)
	}
	defer f.Close() //nolint:errcheck // The mapping outlives the descriptor

	window, err := syscall.Mmap(int(f.Fd()), 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping register window: %w", err)
	}

	bus, err := NewMappedBus(window, shift, width)
	if err != nil {
		syscall.Munmap(window) //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	bus.mapped = true
	return bus, nil
}

// Close unmaps the register window if this bus owns a mapping.
func (b *MappedBus) Close() error {
	if !b.mapped {
		return nil
	}
	b.mapped = false
	if err := syscall.Munmap(b.window); err != nil {
		return fmt.Errorf("unmapping register window: %w", err)
	}
	return nil
}

// Read returns the register value at the given index, honouring the
// configured register shift and width.
func (b *MappedBus) Read(reg uint32) uint32 {
	off := b.offset(reg)
	switch b.width {
	case 1:
		return uint32(b.window[off])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b.window[off:]))
	default:
		return binary.LittleEndian.Uint32(b.window[off:])
	}
}

// Write stores value into the register at the given index.
func (b *MappedBus) Write(reg uint32, value uint32) {
	off := b.offset(reg)
	switch b.width {
	case 1:
		b.window[off] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(b.window[off:], uint16(value))
	default:
		binary.LittleEndian.PutUint32(b.window[off:], value)
	}
}

func (b *MappedBus) offset(reg uint32) uint32 {
	return reg << b.shift
}
