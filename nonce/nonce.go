// Package nonce mints per-request tokens that bind inline scripts and styles to a Content Security Policy.
//
// A [Manager] should be created for each request and discarded afterward.
// The same key is used to mint a token when building the policy, and to look it up again when rendering markup.
package nonce

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager mints and records tokens by logical key.
// A Manager is not safe for concurrent use.
type Manager struct {
	identity string
	root     string
	salt     string
	now      func() time.Time
	tokens   map[string]string
}

type Option func(m *Manager)

// WithIdentity overrides the build/installation identity mixed into each token.
func WithIdentity(identity string) Option {
	return func(m *Manager) {
		m.identity = identity
	}
}

// WithRoot overrides the installation root path mixed into each token.
func WithRoot(root string) Option {
	return func(m *Manager) {
		m.root = root
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		identity: processIdentity(),
		root:     installRoot(),
		salt:     uuid.NewString(),
		now:      time.Now,
		tokens:   map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mint generates a new token for key and records it, replacing any token previously minted for the same key.
//
// The key, the current time, the installation identity, the installation root, and a per-Manager salt are shuffled and hashed.
// Tokens are not a cryptographic commitment, but two Managers never produce the same token for a key.
func (m *Manager) Mint(key string) string {
	parts := []string{
		key,
		strconv.FormatInt(m.now().UnixNano(), 10),
		m.identity,
		m.root,
		m.salt,
	}
	rand.Shuffle(len(parts), func(i, j int) {
		parts[i], parts[j] = parts[j], parts[i]
	})
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	token := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
	m.tokens[key] = token
	return token
}

// Get returns the token minted for key, if any.
func (m *Manager) Get(key string) (string, bool) {
	token, ok := m.tokens[key]
	return token, ok
}

// Keys returns every key that has been minted, sorted.
func (m *Manager) Keys() []string {
	keys := make([]string, 0, len(m.tokens))
	for k := range m.tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of recorded tokens.
func (m *Manager) Len() int {
	return len(m.tokens)
}

// processIdentity is computed once, from the VCS revision when the binary carries one.
var processIdentity = sync.OnceValue(func() string {
	identity := uuid.NewString()
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value + "-" + identity
			}
		}
	}
	return identity
})

var installRoot = sync.OnceValue(func() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return ""
})
