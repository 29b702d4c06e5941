package schema

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// PackRow encodes a row image as msgpack. Packed images are what the audit
// sink stores when a whole-row snapshot is archived in a single column.
func PackRow(row *RowImage) ([]byte, error) {
	var buf bytes.Buffer

	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(&buf)
	if err := enc.Encode(row.Map()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnpackRow decodes a msgpack-encoded row image produced by PackRow.
func UnpackRow(b []byte) (*RowImage, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(b))
	fields, err := dec.DecodeMap()
	if err != nil {
		return nil, err
	}
	return NewRowImage(fields), nil
}
