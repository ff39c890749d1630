package ns16550

import (
	"fmt"

	"github.com/conmux/conmux/internal/console"
)

// 16550 register indices. THR, RBR and DLL share offset 0; IER and DLM
// share offset 1. The DLAB bit in LCR selects the divisor latch.
const (
	regTHR = 0x0 // transmit holding (write)
	regRBR = 0x0 // receive buffer (read)
	regDLL = 0x0 // divisor latch low (DLAB set)
	regIER = 0x1 // interrupt enable
	regDLM = 0x1 // divisor latch high (DLAB set)
	regFCR = 0x2 // FIFO control (write)
	regLCR = 0x3 // line control
	regLSR = 0x5 // line status
)

const (
	lcr8N1  = 0x03 // 8 data bits, no parity, 1 stop bit
	lcrDLAB = 0x80

	lsrRxReady = 0x01 // receive data ready
	lsrTxEmpty = 0x40 // transmit holding register empty

	fcrFIFOEnable = 0x01
	ierDisableAll = 0x00
)

// DefaultDivisor programs 115200 baud assuming the canonical 1.8432 MHz
// reference clock.
const DefaultDivisor uint16 = 0x0001

// Config describes one UART instance.
type Config struct {
	// Name is the console device label. Defaults to "ns16550".
	Name string

	// Flags are the requested standard stream roles. Zero means "no
	// preference": the registry may make this device the default
	// standard stream.
	Flags console.Flag

	// Divisor is the baud rate divisor programmed during Configure.
	// Zero selects DefaultDivisor (115200).
	Divisor uint16
}

// UART is a 16550 console backend over a register Bus.
//
// Out blocks by polling the transmit-empty condition for each byte, so
// the all-or-nothing write contract holds as long as the hardware
// drains its holding register. In never blocks.
type UART struct {
	bus Bus
}

// New creates a driver instance over the given register bus.
func New(bus Bus) (*UART, error) {
	if bus == nil {
		return nil, fmt.Errorf("ns16550: nil bus")
	}
	return &UART{bus: bus}, nil
}

// Configure programs the line parameters: interrupts off, FIFOs off,
// 8n1 framing, and the given baud divisor. conmux drives the UART by
// polling, so the interrupt path stays disabled for the life of the
// device.
func (u *UART) Configure(divisor uint16) {
	if divisor == 0 {
		divisor = DefaultDivisor
	}

	// Clear DLAB so IER/FCR/LCR are addressable.
	u.bus.Write(regLCR, u.bus.Read(regLCR)&^uint32(lcrDLAB))

	u.bus.Write(regIER, ierDisableAll)
	u.bus.Write(regFCR, u.bus.Read(regFCR)&^uint32(fcrFIFOEnable))
	u.bus.Write(regLCR, lcr8N1)

	// Open the divisor latch, program the baud rate, close it again.
	u.bus.Write(regLCR, u.bus.Read(regLCR)|lcrDLAB)
	u.bus.Write(regDLL, uint32(divisor&0xff))
	u.bus.Write(regDLM, uint32(divisor>>8))
	u.bus.Write(regLCR, u.bus.Read(regLCR)&^uint32(lcrDLAB))
}

// Out writes every byte of p to the transmit holding register, polling
// the transmit-empty status bit before each one. A line feed is
// preceded by a carriage return so raw terminal output stays readable.
func (u *UART) Out(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			u.putc('\r')
		}
		u.putc(b)
	}
	return len(p), nil
}

// In drains received bytes into p while the receive-ready status bit is
// set, returning immediately once the UART has nothing more to offer.
func (u *UART) In(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if u.bus.Read(regLSR)&lsrRxReady == 0 {
			break
		}
		p[n] = byte(u.bus.Read(regRBR))
		n++
	}
	return n, nil
}

func (u *UART) putc(b byte) {
	for u.bus.Read(regLSR)&lsrTxEmpty == 0 {
	}
	u.bus.Write(regTHR, uint32(b))
}

// Register configures a UART on bus and registers it as a console
// device, returning the registered device.
func Register(registry *console.Registry, bus Bus, cfg Config) (*console.Device, error) {
	uart, err := New(bus)
	if err != nil {
		return nil, err
	}
	uart.Configure(cfg.Divisor)

	name := cfg.Name
	if name == "" {
		name = "ns16550"
	}
	dev := console.NewDevice(name, uart, cfg.Flags)
	registry.Register(dev)
	return dev, nil
}
