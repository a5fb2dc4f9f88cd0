// Package input pulls SGR mouse reports out of the terminal byte stream.
package input

import (
	"strconv"
	"time"
)

const (
	// EnableMouse turns on button reporting (1000) in SGR encoding (1006).
	EnableMouse  = "\x1b[?1000h\x1b[?1006h"
	DisableMouse = "\x1b[?1006l\x1b[?1000l"

	// WheelInterval is the minimum gap between two accepted wheel events.
	WheelInterval = 30 * time.Millisecond

	wheelBit = 64
)

type Kind int

const (
	LeftRelease Kind = iota + 1
	WheelUp
	WheelDown
)

func (k Kind) String() string {
	switch k {
	case LeftRelease:
		return "left-release"
	case WheelUp:
		return "wheel-up"
	case WheelDown:
		return "wheel-down"
	}
	return "unknown"
}

// Event is a decoded mouse report. X and Y are 1-indexed terminal cells.
type Event struct {
	Kind Kind
	X, Y int
}

// Decoder splits SGR mouse reports (ESC [ < b ; x ; y M|m) from other input.
// A report cut off at the end of one batch is completed by the next.
type Decoder struct {
	now       func() time.Time
	lastWheel time.Time
	pending   []byte
}

func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Decode returns the mouse events in batch and discards everything else.
func (d *Decoder) Decode(batch []byte) []Event {
	_, events := d.Split(batch)
	return events
}

// Split returns the bytes of batch that are not mouse reports, in order, along
// with the events decoded from the reports.
func (d *Decoder) Split(batch []byte) ([]byte, []Event) {
	data := append(d.pending, batch...)
	d.pending = nil

	var (
		rest   = make([]byte, 0, len(data))
		events []Event
	)
	for i := 0; i < len(data); {
		if data[i] != 0x1b || !hasPrefix(data[i:]) {
			rest = append(rest, data[i])
			i++
			continue
		}

		n, params, final, ok := scan(data[i:])
		switch {
		case n == 0:
			// incomplete report; hold it for the next batch
			d.pending = append([]byte(nil), data[i:]...)
			return rest, events
		case !ok:
			rest = append(rest, data[i:i+n]...)
		default:
			if ev, keep := d.classify(params, final); keep {
				events = append(events, ev)
			}
		}
		i += n
	}
	return rest, events
}

// hasPrefix reports whether b starts with ESC [ <. A bare ESC or ESC [ at the
// end of a batch is passed on as is so the escape key is not delayed.
func hasPrefix(b []byte) bool {
	return len(b) >= 3 && b[1] == '[' && b[2] == '<'
}

// scan reads one report starting at ESC [ <. It returns the consumed length,
// or zero when b ends before the terminator. ok is false for malformed input,
// in which case n covers only the bytes that cannot belong to a report.
func scan(b []byte) (n int, params [3]int, final byte, ok bool) {
	field, digits := 0, 0
	for i := 3; i < len(b); i++ {
		c := b[i]
		switch {
		case c >= '0' && c <= '9':
			if digits > 5 {
				return i, params, 0, false
			}
			params[field] = params[field]*10 + int(c-'0')
			digits++
		case c == ';':
			if digits == 0 || field == 2 {
				return i, params, 0, false
			}
			field++
			digits = 0
		case c == 'M' || c == 'm':
			if field != 2 || digits == 0 {
				return i + 1, params, 0, false
			}
			return i + 1, params, c, true
		default:
			return i, params, 0, false
		}
	}
	return 0, params, 0, false
}

func (d *Decoder) classify(p [3]int, final byte) (Event, bool) {
	button, x, y := p[0], p[1], p[2]

	if button&wheelBit != 0 {
		now := d.now()
		if !d.lastWheel.IsZero() && now.Sub(d.lastWheel) < WheelInterval {
			return Event{}, false
		}
		d.lastWheel = now
		kind := WheelUp
		if button&1 == 1 {
			kind = WheelDown
		}
		return Event{Kind: kind, X: x, Y: y}, true
	}

	if button&3 == 0 && final == 'm' {
		return Event{Kind: LeftRelease, X: x, Y: y}, true
	}
	return Event{}, false
}

func (e Event) String() string {
	return e.Kind.String() + "@" + strconv.Itoa(e.X) + "," + strconv.Itoa(e.Y)
}
