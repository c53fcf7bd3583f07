// Package etf decodes the small subset of Erlang External Term Format used
// to transport a peer's sync-bucket map. It is hand-rolled on
// encoding/binary against a fixed tag set, since the format is small and
// fully specified rather than something an existing library would
// meaningfully help with.
package etf

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	tagVersion        byte = 131
	tagSmallInteger   byte = 97
	tagInteger        byte = 98
	tagSmallBig       byte = 110
	tagMap            byte = 116
	tagNewFloat       byte = 70
	tagSmallTuple     byte = 104
	tagLargeTuple     byte = 105
)

// SyncBuckets is the decoded {BucketSize, Map} payload: BucketSize in bytes
// and the set of bucket indices a peer reports a nonzero share for. Only
// keys whose value is greater than zero are kept; the values themselves
// are discarded.
type SyncBuckets struct {
	BucketSize uint64
	Indices    map[uint64]struct{}
}

// Decode parses a full ETF-encoded {BucketSize, Map} response body.
func Decode(data []byte) (*SyncBuckets, error) {
	r := &reader{buf: data}

	if err := r.expectByte(tagVersion); err != nil {
		return nil, err
	}

	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}

	var arity int
	switch tag {
	case tagSmallTuple:
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		arity = int(b)
	case tagLargeTuple:
		n, err := r.readUint32()
		if err != nil {
			return nil, err
		}
		arity = int(n)
	default:
		return nil, fmt.Errorf("etf: expected a tuple, got tag %d", tag)
	}
	if arity != 2 {
		return nil, fmt.Errorf("etf: expected a 2-tuple, got arity %d", arity)
	}

	bucketSizeTerm, err := r.readTerm()
	if err != nil {
		return nil, fmt.Errorf("etf: bucket size: %w", err)
	}
	bucketSize, ok := bucketSizeTerm.(uint64)
	if !ok {
		return nil, fmt.Errorf("etf: bucket size term is not an integer")
	}
	if bucketSize == 0 {
		return nil, fmt.Errorf("etf: bucket size must be positive")
	}

	indices, err := r.readMapFilteringPositive()
	if err != nil {
		return nil, fmt.Errorf("etf: sync bucket map: %w", err)
	}

	return &SyncBuckets{BucketSize: bucketSize, Indices: indices}, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("etf: unexpected end of input")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) expectByte(want byte) error {
	got, err := r.readByte()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("etf: expected tag %d, got %d", want, got)
	}
	return nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, fmt.Errorf("etf: unexpected end of input reading %d bytes", n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readUint32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// readTerm reads one tagged term and returns its value: uint64 for every
// integer encoding, float64 for NEW_FLOAT_EXT.
func (r *reader) readTerm() (interface{}, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagSmallInteger:
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		return uint64(b), nil

	case tagInteger:
		b, err := r.readN(4)
		if err != nil {
			return nil, err
		}
		v := int32(binary.BigEndian.Uint32(b))
		if v < 0 {
			return nil, fmt.Errorf("etf: negative integer not supported in this context")
		}
		return uint64(v), nil

	case tagSmallBig:
		return r.readSmallBig()

	case tagNewFloat:
		b, err := r.readN(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil

	default:
		return nil, fmt.Errorf("etf: unsupported term tag %d", tag)
	}
}

func (r *reader) readSmallBig() (interface{}, error) {
	n, err := r.readByte()
	if err != nil {
		return nil, err
	}
	sign, err := r.readByte()
	if err != nil {
		return nil, err
	}
	digits, err := r.readN(int(n))
	if err != nil {
		return nil, err
	}
	if sign != 0 {
		return nil, fmt.Errorf("etf: negative bignum not supported in this context")
	}

	var v uint64
	for i := len(digits) - 1; i >= 0; i-- {
		v = (v << 8) | uint64(digits[i])
	}
	return v, nil
}

// readMapFilteringPositive reads a MAP_EXT term, returning only the keys
// whose value is strictly positive.
func (r *reader) readMapFilteringPositive() (map[uint64]struct{}, error) {
	if err := r.expectByte(tagMap); err != nil {
		return nil, err
	}
	arity, err := r.readUint32()
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]struct{}, arity)
	for i := uint32(0); i < arity; i++ {
		keyTerm, err := r.readTerm()
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		key, ok := keyTerm.(uint64)
		if !ok {
			return nil, fmt.Errorf("key %d: not an integer", i)
		}

		valueTerm, err := r.readTerm()
		if err != nil {
			return nil, fmt.Errorf("value for key %d: %w", i, err)
		}

		positive := false
		switch v := valueTerm.(type) {
		case uint64:
			positive = v > 0
		case float64:
			positive = v > 0
		}
		if positive {
			out[key] = struct{}{}
		}
	}
	return out, nil
}
