package password

import "golang.org/x/crypto/bcrypt"

// Hasher wraps bcrypt with a configurable work factor. bcrypt salts
// every digest itself, so two hashes of the same plaintext differ.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plaintext string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	return string(bytes), err
}

// Check reports whether plaintext matches the digest. Malformed
// digests are treated as a mismatch, never an error.
func (h *Hasher) Check(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
