package zreader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Blosc frame header, after the 4-byte container magic:
//
//	byte 0: format version
//	byte 1: inner-codec format version
//	byte 2: flags (bit 0: byte shuffle, bit 1: pure memcpy, bits 5-7: codec)
//	byte 3: typesize
//	bytes 4-7:   nbytes, uncompressed length (LE)
//	bytes 8-11:  blocksize (LE)
//	bytes 12-15: cbytes, compressed length including header (LE)
const bloscHeaderLen = 16

const (
	bloscFlagShuffle = 0x01
	bloscFlagMemcpy  = 0x02
)

// Inner codec identifiers from the flags field.
const (
	bloscBloscLZ = iota
	bloscLZ4
	bloscSnappy
	bloscZlib
	bloscZstd
)

var bloscCodecNames = [...]string{"blosclz", "lz4", "snappy", "zlib", "zstd"}

func bloscDecompress(b []byte) ([]byte, error) {
	if len(b) < bloscHeaderLen {
		return nil, fmt.Errorf("blosc: truncated header: %d bytes", len(b))
	}
	flags := b[2]
	typesize := int(b[3])
	nbytes := binary.LittleEndian.Uint32(b[4:8])
	cbytes := binary.LittleEndian.Uint32(b[12:16])
	if int(cbytes) > len(b)+4 {
		return nil, fmt.Errorf("blosc: header claims %d compressed bytes, have %d", cbytes, len(b)+4)
	}
	payload := b[bloscHeaderLen:]

	var out []byte
	switch {
	case flags&bloscFlagMemcpy != 0:
		if uint32(len(payload)) < nbytes {
			return nil, fmt.Errorf("blosc: memcpy frame short: %d < %d", len(payload), nbytes)
		}
		out = bytes.Clone(payload[:nbytes])
	default:
		codec := int(flags >> 5)
		var err error
		switch codec {
		case bloscZstd:
			r, e := zstd.NewReader(bytes.NewReader(payload))
			if e != nil {
				return nil, fmt.Errorf("blosc/zstd: %w", e)
			}
			defer r.Close()
			out, err = io.ReadAll(r)
		case bloscZlib:
			r, e := zlib.NewReader(bytes.NewReader(payload))
			if e != nil {
				return nil, fmt.Errorf("blosc/zlib: %w", e)
			}
			defer r.Close()
			out, err = io.ReadAll(r)
		default:
			name := "unknown"
			if codec < len(bloscCodecNames) {
				name = bloscCodecNames[codec]
			}
			return nil, fmt.Errorf("blosc: unsupported inner codec %q", name)
		}
		if err != nil {
			return nil, err
		}
	}
	if uint32(len(out)) != nbytes {
		return nil, fmt.Errorf("blosc: decoded %d bytes, header claims %d", len(out), nbytes)
	}
	if flags&bloscFlagShuffle != 0 && typesize > 1 {
		out = unshuffle(out, typesize)
	}
	return out, nil
}

// Unshuffle undoes blosc byte-shuffling: input is laid out as all first
// bytes, then all second bytes, etc., of each typesize-wide element.
func unshuffle(b []byte, typesize int) []byte {
	n := len(b) / typesize
	if n*typesize != len(b) {
		// Trailing remainder is stored unshuffled.
		head := unshuffle(b[:n*typesize], typesize)
		return append(head, b[n*typesize:]...)
	}
	out := make([]byte, len(b))
	for i := 0; i < typesize; i++ {
		for j := 0; j < n; j++ {
			out[j*typesize+i] = b[i*n+j]
		}
	}
	return out
}
