// Package rowhandle decodes Postgres physical row identifiers (tid) into
// dense 64-bit labels suitable as HNSW index keys (spec §4.1, C1).
package rowhandle

import "fmt"

// ErrInvalidHandle is returned when the input is not exactly 6 bytes.
var ErrInvalidHandle = fmt.Errorf("row handle must be 6 bytes")

// Decode converts a 6-byte tid (three little-endian-appearing 16-bit
// fields: block_number.bi_hi, block_number.bi_lo, index_number) into a
// 64-bit label.
//
// Each 2-byte field is byte-reversed independently, the three reversed
// fields are concatenated in order, and the resulting 6-byte buffer is read
// as a little-endian unsigned integer, zero-extended into the upper 16
// bits. The mapping is total over 6-byte inputs and deterministic.
func Decode(raw []byte) (uint64, error) {
	if len(raw) != 6 {
		return 0, ErrInvalidHandle
	}

	var reversed [6]byte
	reversed[0], reversed[1] = raw[1], raw[0]
	reversed[2], reversed[3] = raw[3], raw[2]
	reversed[4], reversed[5] = raw[5], raw[4]

	var label uint64
	for i := 5; i >= 0; i-- {
		label = label<<8 | uint64(reversed[i])
	}
	return label, nil
}
