// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import "encoding/binary"

// PackOps concatenates encoded envelopes into the packed-stream framing
// used by transport and sync: op_len:u32 | op_bytes, repeated.
func PackOps(opBytes [][]byte) []byte {
	total := 0
	for _, b := range opBytes {
		total += 4 + len(b)
	}
	out := make([]byte, 0, total)
	var lenBuf [4]byte
	for _, b := range opBytes {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		out = append(out, lenBuf[:]...)
		out = append(out, b...)
	}
	return out
}

// UnpackOps splits a packed stream back into individual op byte slices.
//
// A frame declaring len==0, len>MaxOpSize, or that runs past the end of
// the buffer aborts the batch: the frames successfully parsed before it
// are still returned, along with ErrOpTooLarge (for len==0 or
// len>MaxOpSize) or ErrTruncated (for a frame that runs past the end),
// so the caller can log the anomaly without losing the well-formed prefix.
func UnpackOps(data []byte) (ops [][]byte, err error) {
	off := 0
	for off < len(data) {
		if off+4 > len(data) {
			return ops, ErrTruncated
		}
		n := binary.BigEndian.Uint32(data[off:])
		off += 4
		if n == 0 || n > MaxOpSize {
			return ops, ErrOpTooLarge
		}
		if off+int(n) > len(data) {
			return ops, ErrTruncated
		}
		ops = append(ops, append([]byte(nil), data[off:off+int(n)]...))
		off += int(n)
	}
	return ops, nil
}
