package signature

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by the address format
)

// Network holds the version bytes that distinguish mainnet and testnet
// encodings.
type Network struct {
	Name         string
	PubKeyHashID byte
	PrivateKeyID byte
}

var (
	MainNet = Network{Name: "mainnet", PubKeyHashID: 0x00, PrivateKeyID: 0x80}
	TestNet = Network{Name: "testnet", PubKeyHashID: 0x6f, PrivateKeyID: 0xef}
)

// NetworkByName resolves "mainnet" or "testnet".
func NetworkByName(name string) (Network, error) {
	switch name {
	case MainNet.Name, "":
		return MainNet, nil
	case TestNet.Name:
		return TestNet, nil
	}
	return Network{}, fmt.Errorf("unknown network %q", name)
}

var (
	ErrChecksum      = errors.New("base58check checksum mismatch")
	ErrInvalidLength = errors.New("decoded payload has invalid length")
	ErrUnknownWIF    = errors.New("unknown WIF version byte")
)

// GenerateKey returns a fresh secp256k1 private key.
func GenerateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// Address derives the P2PKH address of pub.
func Address(pub *secp256k1.PublicKey, compressed bool, version byte) string {
	var ser []byte
	if compressed {
		ser = pub.SerializeCompressed()
	} else {
		ser = pub.SerializeUncompressed()
	}
	return checkEncode(version, hash160(ser))
}

// DecodeAddress splits a P2PKH address into its version byte and 20-byte
// public key hash.
func DecodeAddress(addr string) (byte, []byte, error) {
	version, payload, err := checkDecode(addr)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) != ripemd160.Size {
		return 0, nil, ErrInvalidLength
	}
	return version, payload, nil
}

// SignMessage signs message with key and returns the base64 compact
// signature a wallet would produce.
func SignMessage(key *secp256k1.PrivateKey, message string, compressed bool) string {
	sig := ecdsa.SignCompact(key, MessageHash(message), compressed)
	return base64.StdEncoding.EncodeToString(sig)
}

// EncodeWIF exports key in wallet import format.
func EncodeWIF(key *secp256k1.PrivateKey, compressed bool, net Network) string {
	payload := key.Serialize()
	if compressed {
		payload = append(payload, 0x01)
	}
	return checkEncode(net.PrivateKeyID, payload)
}

// DecodeWIF parses a wallet import format key.
func DecodeWIF(wif string) (*secp256k1.PrivateKey, bool, Network, error) {
	version, payload, err := checkDecode(wif)
	if err != nil {
		return nil, false, Network{}, err
	}

	var net Network
	switch version {
	case MainNet.PrivateKeyID:
		net = MainNet
	case TestNet.PrivateKeyID:
		net = TestNet
	default:
		return nil, false, Network{}, ErrUnknownWIF
	}

	switch {
	case len(payload) == 33 && payload[32] == 0x01:
		return secp256k1.PrivKeyFromBytes(payload[:32]), true, net, nil
	case len(payload) == 32:
		return secp256k1.PrivKeyFromBytes(payload), false, net, nil
	}
	return nil, false, Network{}, ErrInvalidLength
}

func hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sum[:])
	return r.Sum(nil)
}

func checkEncode(version byte, payload []byte) string {
	b := make([]byte, 0, 1+len(payload)+4)
	b = append(b, version)
	b = append(b, payload...)
	b = append(b, sha256d(b)[:4]...)
	return base58.Encode(b)
}

func checkDecode(s string) (byte, []byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("base58 decode: %w", err)
	}
	if len(b) < 5 {
		return 0, nil, ErrInvalidLength
	}
	body, sum := b[:len(b)-4], b[len(b)-4:]
	want := sha256d(body)[:4]
	for i := range sum {
		if sum[i] != want[i] {
			return 0, nil, ErrChecksum
		}
	}
	return body[0], body[1:], nil
}
