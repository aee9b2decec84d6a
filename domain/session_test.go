package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSession_Lifecycle(t *testing.T) {
	req := require.New(t)
	session := NewSession("conn-1")

	// Given a fresh session
	req.Equal(Connecting, session.State())
	_, ok := session.Identity()
	req.False(ok)

	// When it is activated
	req.NoError(session.Activate(Identity{UserID: "u1", Username: "alice"}))

	// Then the identity is available
	req.Equal(Active, session.State())
	identity, ok := session.Identity()
	req.True(ok)
	req.Equal("alice", identity.Username)

	// And the identity cannot be replaced
	req.Error(session.Activate(Identity{Username: "mallory"}))
	identity, _ = session.Identity()
	req.Equal("alice", identity.Username)

	// When it is closed twice
	req.Equal(Active, session.Close())
	req.Equal(Disconnected, session.Close())

	// Then no identity is exposed anymore
	req.Equal(Disconnected, session.State())
	_, ok = session.Identity()
	req.False(ok)
}

func TestSession_Cannot_Activate_After_Close(t *testing.T) {
	req := require.New(t)
	session := NewSession("conn-1")
	req.Equal(Connecting, session.Close())
	req.Error(session.Activate(AnonymousIdentity("")))
	req.Equal(Disconnected, session.State())
}
