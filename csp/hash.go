package csp

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
)

// Digest hashes inline content with algo and returns the base64 encoded digest, ready for [Policy.AddHash].
func Digest(algo HashAlgorithm, content []byte) (string, error) {
	if err := algo.validate(); err != nil {
		return "", err
	}
	var h hash.Hash
	switch algo {
	case SHA384:
		h = sha512.New384()
	case SHA512:
		h = sha512.New()
	default:
		h = sha256.New()
	}
	_, _ = h.Write(content)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
