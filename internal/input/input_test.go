package input

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func newDecoder() (*Decoder, *stepClock) {
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewDecoder(clock.Now), clock
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{name: "left release", input: "\x1b[<0;12;5m", want: []Event{{LeftRelease, 12, 5}}},
		{name: "left press ignored", input: "\x1b[<0;12;5M"},
		{name: "right release ignored", input: "\x1b[<2;12;5m"},
		{name: "middle release ignored", input: "\x1b[<1;3;4m"},
		{name: "release with ctrl modifier", input: "\x1b[<16;3;4m", want: []Event{{LeftRelease, 3, 4}}},
		{name: "wheel up", input: "\x1b[<64;7;9M", want: []Event{{WheelUp, 7, 9}}},
		{name: "wheel down", input: "\x1b[<65;7;9M", want: []Event{{WheelDown, 7, 9}}},
		{name: "motion ignored", input: "\x1b[<35;7;9M"},
		{name: "plain keys", input: "jk\r"},
		{name: "malformed", input: "\x1b[<0;1m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDecoder()
			assert.Equal(t, tt.want, d.Decode([]byte(tt.input)))
		})
	}
}

func TestSplitPassesOtherInputThrough(t *testing.T) {
	d, _ := newDecoder()
	rest, events := d.Split([]byte("a\x1b[<0;2;3mb\x1b[Ac\x1b"))

	assert.Equal(t, "ab\x1b[Ac\x1b", string(rest))
	assert.Equal(t, []Event{{LeftRelease, 2, 3}}, events)
}

func TestSplitMalformedReportIsPassedThrough(t *testing.T) {
	d, _ := newDecoder()
	rest, events := d.Split([]byte("\x1b[<0;x"))

	assert.Empty(t, events)
	assert.Equal(t, "\x1b[<0;x", string(rest))
}

func TestPartialReportCarriesOver(t *testing.T) {
	d, _ := newDecoder()

	rest, events := d.Split([]byte("q\x1b[<0;1"))
	assert.Equal(t, "q", string(rest))
	assert.Empty(t, events)

	rest, events = d.Split([]byte("0;20m"))
	assert.Empty(t, rest)
	assert.Equal(t, []Event{{LeftRelease, 10, 20}}, events)

	// a bare prefix at the end is held too
	_, events = d.Split([]byte("\x1b[<"))
	assert.Empty(t, events)
	assert.Equal(t, []Event{{WheelUp, 1, 1}}, d.Decode([]byte("64;1;1M")))
}

func TestWheelRateLimit(t *testing.T) {
	d, clock := newDecoder()

	events := d.Decode([]byte("\x1b[<65;1;1M\x1b[<65;1;1M\x1b[<0;4;4m\x1b[<65;1;1M"))
	assert.Equal(t, []Event{{WheelDown, 1, 1}, {LeftRelease, 4, 4}}, events, "one wheel event per burst, releases pass")

	clock.now = clock.now.Add(29 * time.Millisecond)
	assert.Empty(t, d.Decode([]byte("\x1b[<64;1;1M")))

	clock.now = clock.now.Add(time.Millisecond)
	assert.Equal(t, []Event{{WheelUp, 1, 1}}, d.Decode([]byte("\x1b[<64;1;1M")))
}

// chunkTTY replays fixed reads.
type chunkTTY struct {
	chunks  [][]byte
	written bytes.Buffer
	closed  bool
}

func (c *chunkTTY) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkTTY) Write(p []byte) (int, error) { return c.written.Write(p) }
func (c *chunkTTY) Close() error                { c.closed = true; return nil }
func (c *chunkTTY) Fd() uintptr                 { return 42 }

func TestFilter(t *testing.T) {
	tty := &chunkTTY{chunks: [][]byte{
		[]byte("\x1b[<64;3;3M"),
		[]byte("j\x1b[<0;5"),
		[]byte(";6mk"),
	}}
	dec, _ := newDecoder()
	f := NewFilter(tty, dec)

	var got []Event
	f.OnEvents(func(ev []Event) { got = append(got, ev...) })

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "jk", string(data))
	assert.Equal(t, []Event{{WheelUp, 3, 3}, {LeftRelease, 5, 6}}, got)

	_, err = f.Write([]byte(EnableMouse))
	require.NoError(t, err)
	assert.Equal(t, EnableMouse, tty.written.String())
	assert.Equal(t, uintptr(42), f.Fd())
	require.NoError(t, f.Close())
	assert.True(t, tty.closed)
}

func TestFilterSmallBuffer(t *testing.T) {
	tty := &chunkTTY{chunks: [][]byte{[]byte("\x1b[<0"), []byte("abc")}}
	dec, _ := newDecoder()
	f := NewFilter(tty, dec)

	buf := make([]byte, 4)
	var out []byte
	for {
		n, err := f.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	// the held prefix turns out malformed and comes back ahead of the next batch,
	// which no longer fits the caller's buffer
	assert.Equal(t, "\x1b[<0abc", string(out))
}
