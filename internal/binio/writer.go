package binio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes fixed-layout little-endian records to a seekable stream.
//
// The position is mutated in place; a Writer must not be shared across
// concurrent users.
type Writer struct {
	ws io.WriteSeeker
}

// NewWriter wraps a WriteSeeker. The stream's current position becomes the
// writer's current position.
func NewWriter(ws io.WriteSeeker) *Writer {
	return &Writer{ws: ws}
}

// Write serializes v verbatim in little-endian field order.
// v must be a fixed-size value as defined by encoding/binary.
func (w *Writer) Write(v any) error {
	if err := binary.Write(w.ws, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// WriteArray serializes each record in turn. The count is not written;
// callers store it externally (typically in a header field).
func WriteArray[T any](w *Writer, records []T) error {
	for i := range records {
		if err := w.Write(&records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// WriteBytes writes a raw byte span.
func (w *Writer) WriteBytes(b []byte) error {
	if _, err := w.ws.Write(b); err != nil {
		return fmt.Errorf("write bytes: %w", err)
	}
	return nil
}

// Position reports the current byte offset from the start of the stream.
func (w *Writer) Position() (int64, error) {
	pos, err := w.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("get position: %w", err)
	}
	return pos, nil
}

// Seek sets the current byte offset from the start of the stream.
func (w *Writer) Seek(pos int64) error {
	if _, err := w.ws.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	return nil
}

// Align pads with zero bytes until the position is a multiple of n.
func (w *Writer) Align(n int64) error {
	pos, err := w.Position()
	if err != nil {
		return err
	}
	padding := (n - pos%n) % n
	if padding == 0 {
		return nil
	}
	if _, err := w.ws.Write(make([]byte, padding)); err != nil {
		return fmt.Errorf("write %d padding bytes: %w", padding, err)
	}
	return nil
}
