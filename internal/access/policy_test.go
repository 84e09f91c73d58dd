package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTriggerIngestion(t *testing.T) {
	cases := []struct {
		role     Role
		entitled bool
		want     bool
	}{
		{RoleAdmin, false, true},
		{RoleAdmin, true, true},
		{RoleEditor, true, true},
		{RoleEditor, false, false},
		{RoleViewer, true, false},
		{RoleViewer, false, false},
		{Role("owner"), true, false},
	}
	for _, tc := range cases {
		got := CanTriggerIngestion(tc.role, tc.entitled)
		assert.Equalf(t, tc.want, got, "role=%s entitled=%v", tc.role, tc.entitled)
	}
}

func TestUpdateDenial(t *testing.T) {
	admin := Principal{UserID: "a", Role: RoleAdmin}
	editor := Principal{UserID: "e", Role: RoleEditor}
	owner := Principal{UserID: "o", Role: RoleViewer}
	stranger := Principal{UserID: "s", Role: RoleViewer}

	cases := []struct {
		name     string
		p        Principal
		ingested bool
		want     string
	}{
		{"admin uploaded", admin, false, ""},
		{"editor uploaded", editor, false, ""},
		{"owner uploaded", owner, false, ""},
		{"stranger uploaded", stranger, false, MsgUpdateNotAllowed},
		{"admin ingested", admin, true, ""},
		{"editor ingested", editor, true, MsgIngestedAdminOnly},
		{"owner ingested", owner, true, MsgIngestedAdminOnly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UpdateDenial(tc.p, "o", tc.ingested))
			assert.Equal(t, tc.want == "", CanUpdateDocument(tc.p, "o", tc.ingested))
		})
	}
}

func TestEmptyUserIDIsNotOwner(t *testing.T) {
	p := Principal{Role: RoleViewer}
	assert.False(t, CanUpdateDocument(p, "", false))
}

func TestResetsOnEdit(t *testing.T) {
	assert.True(t, ResetsOnEdit(Principal{Role: RoleAdmin}, true))
	assert.False(t, ResetsOnEdit(Principal{Role: RoleAdmin}, false))
	assert.False(t, ResetsOnEdit(Principal{Role: RoleEditor}, true))
}

func TestAdminOnlyPredicates(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleEditor, RoleViewer} {
		assert.Equal(t, r == RoleAdmin, CanDeleteDocument(r))
		assert.Equal(t, r == RoleAdmin, CanManageUsers(r))
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Editor ")
	assert.NoError(t, err)
	assert.Equal(t, RoleEditor, r)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.False(t, Role("superuser").Valid())
}

func TestRoleAllowed(t *testing.T) {
	set := NewRoleSet(RoleAdmin, RoleEditor)
	assert.True(t, RoleAllowed(RoleAdmin, set))
	assert.False(t, RoleAllowed(RoleViewer, set))
	assert.False(t, RoleAllowed(RoleAdmin, nil))
}
