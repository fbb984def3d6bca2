package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const (
	// NativeMint is the wrapped-SOL mint, used as the native leg of swap routes.
	NativeMint = "So11111111111111111111111111111111111111112"
	// SystemProgramID is the program invoked for native transfers.
	SystemProgramID = "11111111111111111111111111111111"
	// LamportsPerSOL converts between SOL and the chain's base unit.
	LamportsPerSOL = 1_000_000_000

	signatureLen = 64
	// system program instruction index for Transfer
	sysTransferIndex = 2
)

// appendShortVec appends n in the compact-u16 encoding used by the
// transaction wire format.
func appendShortVec(b []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(b, byte(n))
		}
		b = append(b, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// decodeShortVec reads a compact-u16 from the front of b, returning the value
// and the number of bytes consumed.
func decodeShortVec(b []byte) (int, int, error) {
	n, shift := 0, 0
	for i := 0; i < len(b) && i < 3; i++ {
		n |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return n, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("malformed compact-u16")
}

// DecodeAddress decodes a base58 address and checks it is 32 bytes.
func DecodeAddress(addr string) ([]byte, error) {
	raw := base58.Decode(addr)
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid address %q", addr)
	}
	return raw, nil
}

// IsValidAddress reports whether addr is a well-formed base58 public key.
func IsValidAddress(addr string) bool {
	_, err := DecodeAddress(addr)
	return err == nil
}

// BuildTransferTx builds an unsigned native-transfer transaction: one System
// Program Transfer instruction from `from` to `to`, fee paid by `from`. The
// signature envelope holds a single empty slot for the sender's signature.
func BuildTransferTx(from, to string, lamports uint64, blockhash string) ([]byte, error) {
	fromKey, err := DecodeAddress(from)
	if err != nil {
		return nil, err
	}
	toKey, err := DecodeAddress(to)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("transfer to self")
	}
	hash := base58.Decode(blockhash)
	if len(hash) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", blockhash)
	}
	programKey, _ := DecodeAddress(SystemProgramID)

	// message header: 1 required signature, 0 readonly signed,
	// 1 readonly unsigned (the system program)
	msg := []byte{1, 0, 1}
	msg = appendShortVec(msg, 3)
	msg = append(msg, fromKey...)
	msg = append(msg, toKey...)
	msg = append(msg, programKey...)
	msg = append(msg, hash...)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], sysTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg = appendShortVec(msg, 1) // one instruction
	msg = append(msg, 2)         // program id index
	msg = appendShortVec(msg, 2) // two instruction accounts
	msg = append(msg, 0, 1)      // from, to
	msg = appendShortVec(msg, len(data))
	msg = append(msg, data...)

	tx := appendShortVec(nil, 1)
	tx = append(tx, make([]byte, signatureLen)...)
	tx = append(tx, msg...)
	return tx, nil
}

// SignTransaction signs a serialized transaction's message with priv and
// writes the signature into the fee payer's slot. It works for both legacy
// and versioned messages: the signature always covers the serialized message
// bytes following the signature envelope.
func SignTransaction(tx []byte, priv ed25519.PrivateKey) ([]byte, error) {
	numSigs, prefix, err := decodeShortVec(tx)
	if err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}
	if numSigs < 1 {
		return nil, fmt.Errorf("transaction has no signature slots")
	}
	msgStart := prefix + numSigs*signatureLen
	if len(tx) <= msgStart {
		return nil, fmt.Errorf("transaction truncated")
	}

	sig := ed25519.Sign(priv, tx[msgStart:])
	signed := make([]byte, len(tx))
	copy(signed, tx)
	copy(signed[prefix:], sig)
	return signed, nil
}
