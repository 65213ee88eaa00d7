// Package signature verifies Bitcoin signed messages.
//
// A wallet proves ownership of an address by signing a challenge message
// with the address's private key. The signature is the base64 encoding of a
// 65-byte compact signature; the public key is recovered from it and hashed
// into an address, which must equal the claimed one.
package signature

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	messageMagic = "Bitcoin Signed Message:\n"

	compactSigLen = 65
	minHeader     = 27
	maxHeader     = 34
)

// Verifier checks that signature over message was produced by the key
// controlling address.
type Verifier interface {
	Verify(message, address, signature string) bool
}

// BitcoinVerifier implements Verifier for legacy P2PKH addresses on any
// network whose version byte is carried in the address itself.
type BitcoinVerifier struct{}

// Verify implements Verifier. Malformed input of any kind yields false.
func (BitcoinVerifier) Verify(message, address, signature string) bool {
	version, _, err := DecodeAddress(address)
	if err != nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != compactSigLen {
		return false
	}
	if sig[0] < minHeader || sig[0] > maxHeader {
		return false
	}

	pub, compressed, err := ecdsa.RecoverCompact(sig, MessageHash(message))
	if err != nil {
		return false
	}
	return Address(pub, compressed, version) == address
}

// MessageHash returns the double SHA-256 digest a wallet signs for message.
func MessageHash(message string) []byte {
	var buf bytes.Buffer
	writeVarString(&buf, messageMagic)
	writeVarString(&buf, message)
	return sha256d(buf.Bytes())
}

func writeVarString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeVarInt(buf *bytes.Buffer, n uint64) {
	var b [9]byte
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		buf.Write(b[:3])
	case n <= 0xffffffff:
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(n))
		buf.Write(b[:5])
	default:
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], n)
		buf.Write(b[:9])
	}
}

func sha256d(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}
