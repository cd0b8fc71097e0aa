package dns

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_UpsertAndLookup(t *testing.T) {
	s := NewServer(Config{Zone: "services.internal"})

	ip := net.IPv4(10, 0, 0, 5)
	require.NoError(t, s.Upsert(context.Background(), "web.services.internal", ip))

	got, ok := s.lookup("web.services.internal")
	require.True(t, ok)
	assert.True(t, got.Equal(ip))
}

func TestServer_LookupNormalizesTrailingDot(t *testing.T) {
	s := NewServer(Config{})
	ip := net.IPv4(10, 0, 0, 6)
	require.NoError(t, s.Upsert(context.Background(), "api.services.internal", ip))

	_, ok := s.lookup("api.services.internal.")
	assert.True(t, ok)
}

func TestServer_Delete(t *testing.T) {
	s := NewServer(Config{})
	ip := net.IPv4(10, 0, 0, 7)
	require.NoError(t, s.Upsert(context.Background(), "cache.services.internal", ip))

	require.NoError(t, s.Delete(context.Background(), "cache.services.internal"))
	_, ok := s.lookup("cache.services.internal")
	assert.False(t, ok)
}

func TestServer_DeleteAbsentIsNotError(t *testing.T) {
	s := NewServer(Config{})
	assert.NoError(t, s.Delete(context.Background(), "ghost.services.internal"))
}

func TestNewServer_Defaults(t *testing.T) {
	s := NewServer(Config{})
	assert.Equal(t, DefaultListenAddr, s.listenAddr)
	assert.Equal(t, DefaultZone, s.zone)
	assert.Equal(t, []string{"8.8.8.8:53"}, s.upstream)
}
