package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSIDRoundTrip(t *testing.T) {
	sid := SID{
		Revision:       1,
		Authority:      [6]byte{0, 0, 0, 0, 0, 5},
		SubAuthorities: []uint32{21, 3623811015, 3361044348, 30300, 1014},
	}
	b := make([]byte, sid.Size())
	n, err := sid.Encode(b)
	require.NoError(t, err)
	assert.Equal(t, 8+5*4, n)

	var out SID
	require.NoError(t, out.Decode(b))
	assert.Equal(t, sid, out)
	assert.Equal(t, "S-1-5-21-3623811015-3361044348-30300-1014", out.String())
}

func TestSIDDecodeBounds(t *testing.T) {
	var sid SID
	assert.ErrorIs(t, sid.Decode([]byte{1, 0, 0}), ErrSidTooShort)

	// Subauthority count runs past the buffer.
	b := []byte{1, 4, 0, 0, 0, 0, 0, 5, 1, 0, 0, 0}
	assert.ErrorIs(t, sid.Decode(b), ErrSidTooShort)

	b = make([]byte, 8+16*4)
	b[0] = 1
	b[1] = 16
	assert.ErrorIs(t, sid.Decode(b), ErrSidSubAuth)
}

func TestSIDCompare(t *testing.T) {
	everyone := Everyone.Clone()
	assert.Zero(t, Compare(&everyone, &Everyone))
	assert.Equal(t, 1, Compare(&AuthenticatedUsers, &Everyone))
	assert.Equal(t, -1, Compare(&Everyone, &AuthenticatedUsers))

	// Equal prefixes of different lengths match; Equal is stricter.
	user := NFSUsers.WithRID(1000)
	assert.Zero(t, Compare(&user, &NFSUsers))
	assert.False(t, Equal(&user, &NFSUsers))
}

func TestUnixID(t *testing.T) {
	uid := UnixUserSID(1000)
	id, ok := UnixID(&uid, false)
	require.True(t, ok)
	assert.Equal(t, uint32(1000), id)

	_, ok = UnixID(&uid, true)
	assert.False(t, ok, "uid SID must not resolve as a group")

	samba := UnixGroups.WithRID(2000)
	id, ok = UnixID(&samba, true)
	require.True(t, ok)
	assert.Equal(t, uint32(2000), id)

	everyone := Everyone.Clone()
	_, ok = UnixID(&everyone, false)
	assert.False(t, ok)
}

func TestCachingResolver(t *testing.T) {
	r := NewCachingResolver(LocalResolver{})

	sid, err := r.SIDFromID(1000, SidOwner)
	require.NoError(t, err)
	id, err := r.IDFromSID(&sid, SidOwner)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), id)

	// Cached answer is identical.
	again, err := r.SIDFromID(1000, SidOwner)
	require.NoError(t, err)
	assert.Equal(t, sid, again)

	everyone := Everyone.Clone()
	_, err = r.IDFromSID(&everyone, SidGroup)
	assert.ErrorIs(t, err, ErrUnresolved)
}
