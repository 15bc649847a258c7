package trace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("trace: cbor decoder mode: %v", err))
	}
}

// EncodeEvent encodes an event to CBOR.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes a CBOR encoded event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := decMode.Unmarshal(data, &event)
	return event, err
}

// WriterLogger appends CBOR encoded events to a writer.
type WriterLogger struct {
	mu     sync.Mutex
	w      io.Writer
	enc    *cbor.Encoder
	closed bool
}

// NewWriterLogger returns a logger streaming CBOR records to w.
func NewWriterLogger(w io.Writer) *WriterLogger {
	return &WriterLogger{w: w, enc: encMode.NewEncoder(w)}
}

// NewFileLogger returns a logger appending to the file at path, creating
// it if needed.
func NewFileLogger(path string) (*WriterLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriterLogger(f), nil
}

// Log encodes the event. Encoding errors are dropped.
func (l *WriterLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	_ = l.enc.Encode(event)
}

// Close stops logging and closes the underlying writer if it is an io.Closer.
// Calling Close more than once is safe.
func (l *WriterLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Reader iterates over events in a CBOR trace stream.
type Reader struct {
	dec     *cbor.Decoder
	session string
}

// NewReader returns a Reader decoding from r. If session is not empty only
// events of that session are returned.
func NewReader(r io.Reader, session string) *Reader {
	return &Reader{dec: decMode.NewDecoder(r), session: session}
}

// Next returns the next event. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		} else if err != nil {
			return Event{}, err
		}
		if r.session == "" || event.Session == r.session {
			return event, nil
		}
	}
}

var _ Logger = (*WriterLogger)(nil)
