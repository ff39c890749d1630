package vcons

import (
	"bytes"
	"testing"

	"github.com/conmux/conmux/internal/console"
)

func TestConsole_OutAndTakeOutput(t *testing.T) {
	vc := New(0)

	n, err := vc.Out([]byte("boot: "))
	if err != nil || n != 6 {
		t.Fatalf("Out() = %d, %v, want 6, nil", n, err)
	}
	vc.Out([]byte("ok\n"))

	if got := vc.Scrollback(); got != 9 {
		t.Errorf("Scrollback() = %d, want 9", got)
	}
	if got := vc.TakeOutput(); string(got) != "boot: ok\n" {
		t.Errorf("TakeOutput() = %q, want %q", got, "boot: ok\n")
	}
	if got := vc.TakeOutput(); len(got) != 0 {
		t.Errorf("second TakeOutput() = %q, want empty", got)
	}
}

func TestConsole_ScrollbackLimit(t *testing.T) {
	vc := New(4)

	vc.Out([]byte("abcdef"))
	if got := vc.TakeOutput(); string(got) != "cdef" {
		t.Errorf("TakeOutput() = %q, want newest 4 bytes %q", got, "cdef")
	}
}

func TestConsole_FeedAndIn(t *testing.T) {
	vc := New(0)

	if accepted := vc.Feed([]byte("input")); accepted != 5 {
		t.Fatalf("Feed() = %d, want 5", accepted)
	}
	if vc.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", vc.Pending())
	}

	buf := make([]byte, 3)
	n, err := vc.In(buf)
	if err != nil {
		t.Fatalf("In() error = %v", err)
	}
	if string(buf[:n]) != "inp" {
		t.Errorf("In() collected %q, want %q", buf[:n], "inp")
	}

	n, _ = vc.In(buf)
	if string(buf[:n]) != "ut" {
		t.Errorf("second In() collected %q, want %q", buf[:n], "ut")
	}

	// Queue drained: further reads return zero without blocking.
	if n, _ := vc.In(buf); n != 0 {
		t.Errorf("In() on empty queue = %d, want 0", n)
	}
}

func TestConsole_FeedRefusesOverflow(t *testing.T) {
	vc := New(4)

	if accepted := vc.Feed([]byte("abcdef")); accepted != 4 {
		t.Errorf("Feed() = %d, want clamp to 4", accepted)
	}
	if accepted := vc.Feed([]byte("x")); accepted != 0 {
		t.Errorf("Feed() on full queue = %d, want 0", accepted)
	}
}

func TestRegister(t *testing.T) {
	registry := console.NewRegistry()

	dev, vc := Register(registry, "", 0, 0)
	if dev.Name() != "vcons" {
		t.Errorf("Name() = %q, want default %q", dev.Name(), "vcons")
	}
	// First registration with no flags becomes the standard stream.
	if !dev.Flags().Has(console.FlagStdin | console.FlagStdout) {
		t.Errorf("Flags() = %v, want stdin|stdout", dev.Flags())
	}

	registry.Out([]byte("hi"))
	if !bytes.Equal(vc.TakeOutput(), []byte("hi")) {
		t.Error("broadcast output did not reach the virtual console")
	}

	vc.Feed([]byte("abc"))
	buf := make([]byte, 8)
	n, _ := registry.In(buf)
	if string(buf[:n]) != "abc" {
		t.Errorf("aggregate In() collected %q, want %q", buf[:n], "abc")
	}
}
