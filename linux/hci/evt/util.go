package evt

import (
	"encoding/binary"
	"fmt"
)

func getByte(b []byte, i int, dflt uint8) (uint8, error) {
	if i < 0 || i >= len(b) {
		return dflt, fmt.Errorf("index %v out of range, len %v", i, len(b))
	}
	return b[i], nil
}

func getUint16LE(b []byte, i int, dflt uint16) (uint16, error) {
	if i < 0 || i+2 > len(b) {
		return dflt, fmt.Errorf("index %v out of range, len %v", i, len(b))
	}
	return binary.LittleEndian.Uint16(b[i:]), nil
}

// getBytes returns n bytes at i, or the rest of the buffer for n < 0.
func getBytes(b []byte, i, n int) ([]byte, error) {
	if n < 0 {
		if i > len(b) {
			return nil, fmt.Errorf("index %v out of range, len %v", i, len(b))
		}
		return b[i:], nil
	}
	if i < 0 || i+n > len(b) {
		return nil, fmt.Errorf("index %v + %v out of range, len %v", i, n, len(b))
	}
	return b[i : i+n], nil
}

func getAddr(b []byte, i int) ([6]byte, error) {
	bb, err := getBytes(b, i, 6)
	if err != nil {
		return [6]byte{}, err
	}

	out := [6]byte{}
	copy(out[:], bb)
	return out, nil
}
