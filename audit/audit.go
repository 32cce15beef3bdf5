// Package audit keeps a fixed-size trail of the engine's recent
// decisions — lock transitions, command outcomes, flash operations —
// alongside ordinary slog output.
//
// It is the trimmed-down, no-NIC descendant of this project family's
// OpenTelemetry-style telemetry package: the severity levels and the
// fixed-size, truncating message formatting survive, but there is no HTTP
// exporter, because a bus-connected updater has no NIC to export over.
// A host tool (or the debug channel the bus driver may expose) reads
// the ring directly instead.
package audit

import (
	"context"
	"io"
	"log/slog"
)

// Severity mirrors the OTLP severity numbers the wider project family
// uses, so a log line's weight reads the same whether it came from this
// device or one with a network exporter.
type Severity uint8

const (
	SeverityDebug Severity = 5
	SeverityInfo  Severity = 9
	SeverityWarn  Severity = 13
	SeverityError Severity = 17
)

// ringCapacity bounds the trail to a fixed amount of RAM.
const ringCapacity = 32

// entryMsgCap bounds a single formatted entry.
const entryMsgCap = 96

// Entry is one recorded decision.
type Entry struct {
	Seq      uint32
	Severity Severity
	msg      [entryMsgCap]byte
	msgLen   uint8
}

// Message returns the formatted text of the entry.
func (e *Entry) Message() string {
	return string(e.msg[:e.msgLen])
}

// Ring is a fixed-capacity circular buffer of Entry, overwriting the
// oldest record once full.
type Ring struct {
	entries [ringCapacity]Entry
	next    int
	count   int
	seq     uint32
}

// Add appends a formatted message, evicting the oldest entry if full.
func (r *Ring) Add(sev Severity, msg string) {
	e := &r.entries[r.next]
	e.Seq = r.seq
	e.Severity = sev
	e.msgLen = uint8(copy(e.msg[:], msg))

	r.seq++
	r.next = (r.next + 1) % ringCapacity
	if r.count < ringCapacity {
		r.count++
	}
}

// Len reports how many entries are currently stored.
func (r *Ring) Len() int {
	return r.count
}

// Snapshot copies the stored entries, oldest first, into dst and
// returns the number written.
func (r *Ring) Snapshot(dst []Entry) int {
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	start := (r.next - r.count + ringCapacity) % ringCapacity
	for i := 0; i < n; i++ {
		dst[i] = r.entries[(start+i)%ringCapacity]
	}
	return n
}

// Handler is a slog.Handler that writes to an underlying text handler
// and also appends every Info-and-above record to a Ring.
type Handler struct {
	text  slog.Handler
	ring  *Ring
	group string
}

// NewHandler creates a Handler writing human-readable text to w and
// mirroring Info+ records into ring.
func NewHandler(w io.Writer, ring *Ring, opts *slog.HandlerOptions) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		text: slog.NewTextHandler(w, opts),
		ring: ring,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)

	if r.Level >= slog.LevelInfo && h.ring != nil {
		h.ring.Add(levelToSeverity(r.Level), buildMessage(h.group, r))
	}

	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{
		text:  h.text.WithAttrs(attrs),
		ring:  h.ring,
		group: h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &Handler{
		text:  h.text.WithGroup(name),
		ring:  h.ring,
		group: group,
	}
}

func levelToSeverity(level slog.Level) Severity {
	switch {
	case level >= slog.LevelError:
		return SeverityError
	case level >= slog.LevelWarn:
		return SeverityWarn
	case level >= slog.LevelInfo:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}

// buildMessage renders "group:msg key=val ..." into a fixed buffer,
// truncating rather than allocating once the entry is full.
func buildMessage(group string, r slog.Record) string {
	var buf [entryMsgCap]byte
	pos := 0

	if group != "" {
		pos = appendString(buf[:], pos, group)
		pos = appendByte(buf[:], pos, ':')
	}

	pos = appendString(buf[:], pos, r.Message)

	attrCount := 0
	r.Attrs(func(a slog.Attr) bool {
		if attrCount >= 4 || pos >= len(buf)-8 {
			return false
		}
		pos = appendByte(buf[:], pos, ' ')
		pos = appendString(buf[:], pos, a.Key)
		pos = appendByte(buf[:], pos, '=')
		pos = appendValue(buf[:], pos, a.Value)
		attrCount++
		return true
	})

	return string(buf[:pos])
}

func appendString(buf []byte, pos int, s string) int {
	return pos + copy(buf[pos:], s)
}

func appendByte(buf []byte, pos int, b byte) int {
	if pos < len(buf) {
		buf[pos] = b
		return pos + 1
	}
	return pos
}

func appendValue(buf []byte, pos int, v slog.Value) int {
	switch v.Kind() {
	case slog.KindString:
		return appendString(buf, pos, v.String())
	case slog.KindInt64:
		return appendString(buf, pos, itoa(v.Int64()))
	case slog.KindUint64:
		return appendString(buf, pos, utoa(v.Uint64()))
	case slog.KindBool:
		if v.Bool() {
			return appendString(buf, pos, "true")
		}
		return appendString(buf, pos, "false")
	case slog.KindDuration:
		return appendString(buf, pos, v.Duration().String())
	default:
		return appendByte(buf, pos, '?')
	}
}

func itoa(n int64) string {
	if n < 0 {
		return "-" + utoa(uint64(-n))
	}
	return utoa(uint64(n))
}

func utoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
