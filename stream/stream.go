package stream

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Read consumes exactly count bytes from r, accumulating across short
// reads, and returns them. An error (including EOF before count bytes
// arrive) is returned so callers can treat it as a broken connection
// rather than blocking forever.
func Read(r io.Reader, count int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	b := make([]byte, count)
	_, err := io.ReadFull(r, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ReadBytes reads n bytes from the byte buffer and returns it
func ReadBytes(n int, buf *bytes.Buffer) []byte {
	bs := make([]byte, n, n)
	for i := range bs {
		bs[i], _ = buf.ReadByte()
	}
	return bs
}

// ReadByte reads a single byte off the given byte buffer and returns it
func ReadByte(buf *bytes.Buffer) byte {
	return ReadBytes(1, buf)[0]
}

// ReadUint16 reads 2 bytes off the buffer and returns it as a uint16
func ReadUint16(buf *bytes.Buffer) uint16 {
	return binary.BigEndian.Uint16(ReadBytes(2, buf))
}

// ReadUint32 reads 4 bytes off the buffer and returns it as a uint32
func ReadUint32(buf *bytes.Buffer) uint32 {
	return binary.BigEndian.Uint32(ReadBytes(4, buf))
}

// WriteByte appends a single byte to the buffer.
func WriteByte(buf *bytes.Buffer, b byte) {
	buf.WriteByte(b)
}

// WriteBytes appends a raw byte slice to the buffer.
func WriteBytes(buf *bytes.Buffer, bs []byte) {
	buf.Write(bs)
}

// WriteUint16 appends a big-endian uint16 to the buffer.
func WriteUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// WriteUint32 appends a big-endian uint32 to the buffer.
func WriteUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
