package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  string
	}{
		{
			name:  "no roles falls back to default",
			roles: nil,
			want:  RoleUser,
		},
		{
			name:  "admin wins over everything",
			roles: []string{"Zeta", RoleAdmin, RoleUser},
			want:  RoleAdmin,
		},
		{
			name:  "lexicographically first otherwise",
			roles: []string{RoleUser, "Auditor", "Support"},
			want:  "Auditor",
		},
		{
			name:  "single role",
			roles: []string{"Support"},
			want:  "Support",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{Roles: tt.roles}
			assert.Equal(t, tt.want, u.PrimaryRole())
		})
	}
}

func TestLocked(t *testing.T) {
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&User{}).Locked(now))
	assert.False(t, (&User{LockedUntil: &past}).Locked(now))
	assert.True(t, (&User{LockedUntil: &future}).Locked(now))
}
