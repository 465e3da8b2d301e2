package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vstarodubtsev/cifsd/smb"
)

func chmodBytes(t *testing.T, mode uint32) ([]byte, SID, SID) {
	t.Helper()
	owner := UnixUserSID(1000)
	group := UnixGroupSID(1000)
	dacl := ChmodDACL(&owner, &group, mode)
	b := make([]byte, dacl.Size())
	_, err := dacl.Encode(b)
	require.NoError(t, err)
	return b, owner, group
}

func TestChmodDACLRoundTrip(t *testing.T) {
	for _, mode := range []uint32{0o755, 0o644, 0o600, 0o777, 0o444} {
		b, owner, group := chmodBytes(t, mode)

		dacl, err := ParseDACL(b)
		require.NoError(t, err)
		require.Len(t, dacl.ACEs, 3)
		assert.Equal(t, mode, dacl.Mode(&owner, &group), "mode %o", mode)
	}
}

func TestChmodDACLMinimumRights(t *testing.T) {
	// 0o000 still grants attribute reads so the owner can stat.
	b, owner, group := chmodBytes(t, 0)
	dacl, err := ParseDACL(b)
	require.NoError(t, err)
	assert.Zero(t, dacl.Mode(&owner, &group))
	for _, ace := range dacl.ACEs {
		assert.NotZero(t, ace.Access&smb.FILE_READ_ATTRIBUTES)
	}
}

func TestDenyACEMasksLaterAllows(t *testing.T) {
	owner := UnixUserSID(1000)
	group := UnixGroupSID(1000)
	dacl := &DACL{
		Revision: ACLRevision,
		ACEs: []ACE{
			{Type: AccessDenied, Access: smb.FILE_WRITE_RIGHTS, SID: owner.Clone()},
			{Type: AccessAllowed, Access: smb.GENERIC_ALL, SID: owner.Clone()},
		},
	}
	mode := dacl.Mode(&owner, &group)
	assert.Zero(t, mode&ModeWUGO&ModeRWXU, "denied write must stay off: %o", mode)
	assert.NotZero(t, mode&0o400, "read still allowed: %o", mode)
}

func TestNilAndEmptyDACL(t *testing.T) {
	owner := UnixUserSID(1)
	group := UnixGroupSID(1)

	var nilDacl *DACL
	assert.Equal(t, uint32(0o777), nilDacl.Mode(&owner, &group))

	empty := &DACL{Revision: ACLRevision}
	assert.Zero(t, empty.Mode(&owner, &group))
	assert.ErrorIs(t, empty.CheckPermission(&owner, smb.FILE_READ_DATA), ErrAccess)
}

func TestCheckPermission(t *testing.T) {
	owner := UnixUserSID(1000)
	stranger := UnixUserSID(1001)
	group := UnixGroupSID(1000)
	b, _, _ := chmodBytes(t, 0o600)
	dacl, err := ParseDACL(b)
	require.NoError(t, err)

	assert.NoError(t, dacl.CheckPermission(&owner, smb.GENERIC_READ))
	assert.ErrorIs(t, dacl.CheckPermission(&stranger, smb.GENERIC_READ), ErrAccess)
	_ = group
}

func TestParseDACLRejectsShortACE(t *testing.T) {
	b, _, _ := chmodBytes(t, 0o644)
	// Shrink the first ACE size below the minimum.
	b[8+2] = 8
	b[8+3] = 0
	_, err := ParseDACL(b)
	assert.ErrorIs(t, err, ErrAceTooSmall)
}

func TestSecurityDescriptorRoundTrip(t *testing.T) {
	owner := UnixUserSID(1000)
	group := UnixGroupSID(100)
	dacl := ChmodDACL(&owner, &group, 0o750)

	b, err := BuildSecurityDescriptor(&owner, &group, dacl,
		OwnerSecInfo|GroupSecInfo|DaclSecInfo)
	require.NoError(t, err)

	sd, err := ParseSecurityDescriptor(b)
	require.NoError(t, err)
	require.NotNil(t, sd.Owner)
	require.NotNil(t, sd.Group)
	require.NotNil(t, sd.DACL)
	assert.True(t, Equal(sd.Owner, &owner))
	assert.True(t, Equal(sd.Group, &group))
	assert.NotZero(t, sd.Type&SelfRelative)
	assert.NotZero(t, sd.Type&DaclPresent)
	assert.Equal(t, uint32(0o750), sd.DACL.Mode(&owner, &group))
}

func TestSecurityDescriptorPartial(t *testing.T) {
	owner := UnixUserSID(1)
	b, err := BuildSecurityDescriptor(&owner, nil, nil, OwnerSecInfo)
	require.NoError(t, err)

	sd, err := ParseSecurityDescriptor(b)
	require.NoError(t, err)
	assert.NotNil(t, sd.Owner)
	assert.Nil(t, sd.Group)
	assert.Nil(t, sd.DACL)
	assert.Zero(t, sd.Type&DaclPresent)
}
