package mpcnet

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// wire tags keep scalar and point payloads from being confused when a
// protocol step goes out of sync.
const (
	tagScalars byte = 0x01
	tagPoints  byte = 0x02
)

const wireHeader = 5 // tag + u32 count

// MarshalScalars encodes a scalar vector as tag, count, then 32-byte
// big-endian regular-form elements.
func MarshalScalars(vs []fr.Element) []byte {
	out := make([]byte, wireHeader+len(vs)*fr.Bytes)
	out[0] = tagScalars
	binary.BigEndian.PutUint32(out[1:], uint32(len(vs)))
	for i := range vs {
		b := vs[i].Bytes()
		copy(out[wireHeader+i*fr.Bytes:], b[:])
	}
	return out
}

// UnmarshalScalars decodes a MarshalScalars payload, rejecting non-canonical
// encodings.
func UnmarshalScalars(data []byte) ([]fr.Element, error) {
	if len(data) < wireHeader || data[0] != tagScalars {
		return nil, fmt.Errorf("%w: not a scalar vector", ErrSerialization)
	}
	n := int(binary.BigEndian.Uint32(data[1:]))
	if len(data) != wireHeader+n*fr.Bytes {
		return nil, fmt.Errorf("%w: scalar vector length %d does not match count %d", ErrSerialization, len(data), n)
	}
	out := make([]fr.Element, n)
	for i := range out {
		if err := out[i].SetBytesCanonical(data[wireHeader+i*fr.Bytes : wireHeader+(i+1)*fr.Bytes]); err != nil {
			return nil, fmt.Errorf("%w: scalar %d: %v", ErrSerialization, i, err)
		}
	}
	return out, nil
}

// MarshalPoints encodes a G1 vector in compressed form.
func MarshalPoints(ps []bn254.G1Affine) []byte {
	out := make([]byte, wireHeader+len(ps)*bn254.SizeOfG1AffineCompressed)
	out[0] = tagPoints
	binary.BigEndian.PutUint32(out[1:], uint32(len(ps)))
	for i := range ps {
		b := ps[i].Bytes()
		copy(out[wireHeader+i*bn254.SizeOfG1AffineCompressed:], b[:])
	}
	return out
}

// UnmarshalPoints decodes a MarshalPoints payload, verifying subgroup
// membership of every point.
func UnmarshalPoints(data []byte) ([]bn254.G1Affine, error) {
	if len(data) < wireHeader || data[0] != tagPoints {
		return nil, fmt.Errorf("%w: not a point vector", ErrSerialization)
	}
	n := int(binary.BigEndian.Uint32(data[1:]))
	const sz = bn254.SizeOfG1AffineCompressed
	if len(data) != wireHeader+n*sz {
		return nil, fmt.Errorf("%w: point vector length %d does not match count %d", ErrSerialization, len(data), n)
	}
	out := make([]bn254.G1Affine, n)
	for i := range out {
		if _, err := out[i].SetBytes(data[wireHeader+i*sz : wireHeader+(i+1)*sz]); err != nil {
			return nil, fmt.Errorf("%w: point %d: %v", ErrSerialization, i, err)
		}
	}
	return out, nil
}
