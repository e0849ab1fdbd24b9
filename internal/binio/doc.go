// Package binio provides positioned little-endian binary I/O over seekable
// streams.
//
// The Writer supports the reserve-then-backfill pattern the kmodel format
// depends on: record a position, seek past a region whose size is known from
// counts alone, write size-dependent content, then seek back and fill the
// region in. The Reader is the consuming mirror used by the runtime loader.
//
// All multi-byte values are little-endian. Failures are fatal I/O errors
// wrapped with context; no recovery or retry is attempted.
package binio
