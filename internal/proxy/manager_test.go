package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProxyRotates(t *testing.T) {
	m, err := NewManager([]string{"http://p1:8000", "http://p2:8000"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "p1:8000", m.GetProxy().Host)
	assert.Equal(t, "p2:8000", m.GetProxy().Host)
	assert.Equal(t, "p1:8000", m.GetProxy().Host)
}

func TestNoProxy(t *testing.T) {
	m, err := NewManager(nil, nil)
	require.NoError(t, err)

	p, err := m.Proxy(&http.Request{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestInvalidProxy(t *testing.T) {
	_, err := NewManager([]string{"not a proxy"}, nil)
	assert.Error(t, err)
}

func TestGetUserAgent(t *testing.T) {
	m, err := NewManager(nil, []string{"agent-a", "agent-b"})
	require.NoError(t, err)
	for range 20 {
		assert.Contains(t, []string{"agent-a", "agent-b"}, m.GetUserAgent())
	}

	d, err := NewManager(nil, nil)
	require.NoError(t, err)
	assert.Contains(t, DefaultUserAgents, d.GetUserAgent())
}
