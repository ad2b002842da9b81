package nonce

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Mint(t *testing.T) {
	m := New()
	token := m.Mint("test")
	assert.Len(t, token, 56)
	assert.Regexp(t, `^[A-Za-z0-9+/]{54}==$`, token)

	decoded, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{40}$`, string(decoded), "Token should encode a SHA-1 hex digest")

	got, ok := m.Get("test")
	assert.True(t, ok)
	assert.Equal(t, token, got)

	_, ok = m.Get("other")
	assert.False(t, ok)
}

func TestManager_MintOverwrites(t *testing.T) {
	var tick int64
	m := New(WithClock(func() time.Time {
		tick++
		return time.Unix(0, tick)
	}))
	first := m.Mint("script")
	second := m.Mint("script")
	assert.NotEqual(t, first, second)

	got, ok := m.Get("script")
	assert.True(t, ok)
	assert.Equal(t, second, got)
	assert.Equal(t, 1, m.Len())
}

func TestManager_DistinctInstances(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	clock := func() time.Time { return fixed }
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		m := New(WithClock(clock), WithIdentity("build"), WithRoot("/srv/www"))
		token := m.Mint("x")
		assert.False(t, seen[token], "Separate managers must not repeat a token")
		seen[token] = true
	}
}

func TestManager_Keys(t *testing.T) {
	m := New()
	assert.Empty(t, m.Keys())
	m.Mint("style")
	m.Mint("script")
	m.Mint("style")
	assert.Equal(t, []string{"script", "style"}, m.Keys())
}
