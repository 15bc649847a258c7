package trace

import (
	"context"
	"log/slog"
)

// SlogAdapter writes bus transactions to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session", event.Session),
		slog.Uint64("seq", event.Seq),
		slog.String("opcode", hexByte(event.Opcode)),
		slog.String("status", hexByte(event.Status)),
	}
	if len(event.Write) > 0 {
		attrs = append(attrs, slog.String("write", hexBytes(event.Write)))
	}
	if len(event.Read) > 0 {
		attrs = append(attrs, slog.String("read", hexBytes(event.Read)))
	}
	if event.Err != "" {
		attrs = append(attrs, slog.String("err", event.Err))
	}
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "bus", attrs...)
}

const hexdigits = "0123456789abcdef"

func hexByte(b byte) string {
	return string([]byte{'0', 'x', hexdigits[b>>4], hexdigits[b&0xf]})
}

func hexBytes(b []byte) string {
	buf := make([]byte, 0, 2*len(b))
	for _, c := range b {
		buf = append(buf, hexdigits[c>>4], hexdigits[c&0xf])
	}
	return string(buf)
}

var _ Logger = (*SlogAdapter)(nil)
