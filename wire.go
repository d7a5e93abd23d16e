package warmcache

import (
	"bytes"
	"errors"
)

// Stored values carry a small envelope so the validation gate's live sample
// can tell foreign or truncated bytes from a healthy record:
//
//	magic(4) | ver(1) | payload
var (
	ErrCorruptValue = errors.New("warmcache: corrupt cache value")

	valueMagic = [...]byte{'W', 'A', 'R', 'M'}
)

const valueVersion byte = 1

func sealValue(payload []byte) []byte {
	out := make([]byte, 0, len(valueMagic)+1+len(payload))
	out = append(out, valueMagic[:]...)
	out = append(out, valueVersion)
	return append(out, payload...)
}

func openValue(b []byte) ([]byte, error) {
	const hdr = len(valueMagic) + 1
	if len(b) < hdr || !bytes.Equal(b[:len(valueMagic)], valueMagic[:]) || b[len(valueMagic)] != valueVersion {
		return nil, ErrCorruptValue
	}
	return b[hdr:], nil
}
