package sco

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Addr represents a remote device's BD_ADDR.
type Addr interface {
	String() string
	Bytes() []byte
}

// NewAddr creates an Addr from string
func NewAddr(s string) Addr {
	return addr(strings.ToLower(s))
}

// AddrFromBytes creates an Addr from the little-endian on-air order
// used by HCI events.
func AddrFromBytes(b [6]byte) Addr {
	return NewAddr(fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		b[5], b[4], b[3], b[2], b[1], b[0]))
}

type addr string

func (a addr) String() string {
	return string(a)
}

func (a addr) Bytes() []byte {
	hexStr := strings.Replace(a.String(), ":", "", -1)

	out, err := hex.DecodeString(hexStr)
	if err != nil {
		fmt.Println("error decoding address:", err, a.String())
	}

	return out
}

// AddrValid reports whether a parses to a 48 bit address.
func AddrValid(a Addr) bool {
	if a == nil {
		return false
	}

	hexStr := strings.Replace(a.String(), ":", "", -1)
	b, err := hex.DecodeString(hexStr)
	return err == nil && len(b) == 6
}
