package encoding

import (
	"encoding/binary"
	"errors"
)

// Fixed widths of the big-endian integer encodings.
const (
	Int16Len  = 2
	Int32Len  = 4
	Int64Len  = 8
	StringLen = Int32Len // length prefix of an encoded string
)

// ErrShortBuffer is returned when a length-prefixed value is cut short.
var ErrShortBuffer = errors.New("encoding: short buffer")

// Int16Bytes encodes v as 2 big-endian bytes.
func Int16Bytes(v int16) []byte {
	buf := make([]byte, Int16Len)
	binary.BigEndian.PutUint16(buf, uint16(v))
	return buf
}

// ParseInt16 decodes the first 2 bytes of buf.
func ParseInt16(buf []byte) int16 {
	return int16(binary.BigEndian.Uint16(buf[:Int16Len]))
}

// Int32Bytes encodes v as 4 big-endian bytes.
func Int32Bytes(v int32) []byte {
	buf := make([]byte, Int32Len)
	binary.BigEndian.PutUint32(buf, uint32(v))
	return buf
}

// ParseInt32 decodes the first 4 bytes of buf.
func ParseInt32(buf []byte) int32 {
	return int32(binary.BigEndian.Uint32(buf[:Int32Len]))
}

// Int64Bytes encodes v as 8 big-endian bytes.
func Int64Bytes(v int64) []byte {
	buf := make([]byte, Int64Len)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// ParseInt64 decodes the first 8 bytes of buf.
func ParseInt64(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf[:Int64Len]))
}

// Uint64Bytes encodes v as 8 big-endian bytes.
func Uint64Bytes(v uint64) []byte {
	buf := make([]byte, Int64Len)
	PutUint64(buf, v)
	return buf
}

// PutUint64 writes v into the first 8 bytes of buf.
func PutUint64(buf []byte, v uint64) {
	binary.BigEndian.PutUint64(buf[:Int64Len], v)
}

// ParseUint64 decodes the first 8 bytes of buf.
func ParseUint64(buf []byte) uint64 {
	return binary.BigEndian.Uint64(buf[:Int64Len])
}

// StringBytes encodes s as a 4-byte big-endian length followed by its raw bytes.
func StringBytes(s string) []byte {
	buf := make([]byte, StringLen+len(s))
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[StringLen:], s)
	return buf
}

// ParseString decodes a length-prefixed string from the start of raw and
// returns it together with the number of bytes consumed.
func ParseString(raw []byte) (string, int, error) {
	if len(raw) < StringLen {
		return "", 0, ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint32(raw))
	if len(raw)-StringLen < n {
		return "", 0, ErrShortBuffer
	}
	return string(raw[StringLen : StringLen+n]), StringLen + n, nil
}

// uidSeed is the multiplier of the StrToUID polynomial hash.
const uidSeed = 13331

// StrToUID hashes key into a 64-bit uid as sum(b[i] * 13331^(n-1-i)) with
// wrapping arithmetic. Bytes are taken as signed.
func StrToUID(key string) int64 {
	var uid int64
	for i := 0; i < len(key); i++ {
		uid = uid*uidSeed + int64(int8(key[i]))
	}
	return uid
}
