package input

import (
	"io"
	"sync"
)

// TTY is what bubbletea needs from its input to put the terminal in raw mode.
type TTY interface {
	io.ReadWriteCloser
	Fd() uintptr
}

// Filter wraps the terminal input, hands mouse reports to a handler and passes
// every other byte through unchanged.
type Filter struct {
	tty TTY
	dec *Decoder

	mu      sync.Mutex
	handler func([]Event)

	overflow []byte
}

func NewFilter(tty TTY, dec *Decoder) *Filter {
	return &Filter{tty: tty, dec: dec}
}

// OnEvents sets the receiver of decoded mouse events.
func (f *Filter) OnEvents(handler func([]Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *Filter) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if len(f.overflow) > 0 {
			n := copy(p, f.overflow)
			f.overflow = f.overflow[n:]
			return n, nil
		}

		n, err := f.tty.Read(p)
		if n > 0 {
			rest, events := f.dec.Split(p[:n])
			f.emit(events)
			if len(rest) > 0 {
				k := copy(p, rest)
				f.overflow = append(f.overflow, rest[k:]...)
				return k, err
			}
		}
		if err != nil {
			return 0, err
		}
		// the read held only mouse reports; wait for more
	}
}

func (f *Filter) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler(events)
	}
}

func (f *Filter) Write(p []byte) (int, error) { return f.tty.Write(p) }

func (f *Filter) Close() error { return f.tty.Close() }

func (f *Filter) Fd() uintptr { return f.tty.Fd() }
