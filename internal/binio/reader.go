package binio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads fixed-layout little-endian records from a seekable stream.
type Reader struct {
	rs io.ReadSeeker
}

// NewReader wraps a ReadSeeker. The stream's current position becomes the
// reader's current position.
func NewReader(rs io.ReadSeeker) *Reader {
	return &Reader{rs: rs}
}

// Read deserializes into v, which must be a pointer to a fixed-size value as
// defined by encoding/binary.
func (r *Reader) Read(v any) error {
	if err := binary.Read(r.rs, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("read record: %w", err)
	}
	return nil
}

// ReadArray deserializes len(records) records in turn.
func ReadArray[T any](r *Reader, records []T) error {
	for i := range records {
		if err := r.Read(&records[i]); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// ReadBytes fills b from the stream.
func (r *Reader) ReadBytes(b []byte) error {
	if _, err := io.ReadFull(r.rs, b); err != nil {
		return fmt.Errorf("read %d bytes: %w", len(b), err)
	}
	return nil
}

// Position reports the current byte offset from the start of the stream.
func (r *Reader) Position() (int64, error) {
	pos, err := r.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("get position: %w", err)
	}
	return pos, nil
}

// Seek sets the current byte offset from the start of the stream.
func (r *Reader) Seek(pos int64) error {
	if _, err := r.rs.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	return nil
}

// Align advances the position to the next multiple of n.
func (r *Reader) Align(n int64) error {
	pos, err := r.Position()
	if err != nil {
		return err
	}
	padding := (n - pos%n) % n
	if padding == 0 {
		return nil
	}
	if _, err := r.rs.Seek(padding, io.SeekCurrent); err != nil {
		return fmt.Errorf("skip %d padding bytes: %w", padding, err)
	}
	return nil
}
