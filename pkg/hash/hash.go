package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/sha3"
)

// NewTransactionHash generates a synthetic, Ethereum-styled transaction hash.
// It is a Keccak-256 digest over random bytes and the current time; nothing
// ever verifies it against a ledger.
func NewTransactionHash() (string, error) {
	buf := make([]byte, 40)
	if _, err := rand.Read(buf[:32]); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	binary.BigEndian.PutUint64(buf[32:], uint64(time.Now().UnixNano()))

	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// FileDigest computes the SHA-256 digest of everything read from r,
// hex-encoded with a 0x prefix.
func FileDigest(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash file contents: %w", err)
	}
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// Digester wraps a writer-side SHA-256 so uploads can be hashed while they
// are streamed to disk.
type Digester struct {
	h interface {
		io.Writer
		Sum([]byte) []byte
	}
}

func NewDigester() *Digester {
	return &Digester{h: sha256.New()}
}

func (d *Digester) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

func (d *Digester) Hex() string {
	return "0x" + hex.EncodeToString(d.h.Sum(nil))
}
