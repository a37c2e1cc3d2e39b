package project

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Digest fingerprints a project file; Combine folds in its references so a
// change anywhere below a project changes the project's own fingerprint.
type Digest [sha256.Size]byte

func Sum(content []byte) Digest {
	return sha256.Sum256(content)
}

// Combine hashes own followed by refs in the given order.
func Combine(own Digest, refs ...Digest) Digest {
	if len(refs) == 0 {
		return own
	}
	buf := make([]byte, 0, (len(refs)+1)*sha256.Size)
	buf = append(buf, own[:]...)
	for _, r := range refs {
		buf = append(buf, r[:]...)
	}
	return sha256.Sum256(buf)
}

func ParseDigest(s string) (Digest, error) {
	var d Digest
	if hex.DecodedLen(len(s)) != len(d) {
		return Digest{}, fmt.Errorf("invalid digest %q", s)
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, fmt.Errorf("invalid digest %q", s)
	}
	return d, nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
