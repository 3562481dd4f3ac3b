package tests

import (
	"net/http"
	"testing"
	"time"

	"identity/tests/suite"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	IsLocked bool   `json:"isLocked"`
}

type userDetail struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Roles       []string   `json:"roles"`
	LockedUntil *time.Time `json:"lockedUntil"`
}

// adminToken registers an admin account and logs it in.
func adminToken(t *testing.T, st *suite.Suite) string {
	t.Helper()

	ctx := t.Context()
	email := gofakeit.Email()
	password := randomPassword()
	st.RegisterAdmin(ctx, email, password)
	return login(t, st, email, password).AccessToken
}

func TestAdminRequiresAdminRole(t *testing.T) {
	_, st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()
	register(t, st, email, password)
	userPair := login(t, st, email, password)

	// No token at all.
	resp := st.Get("/api/admin/users", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body messageBody
	st.DecodeJSON(resp, &body)
	assert.Equal(t, "invalid or missing token", body.Message)

	// Authenticated but not an admin.
	resp = st.Get("/api/admin/users", userPair.AccessToken)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	st.DecodeJSON(resp, &body)
	assert.Equal(t, "insufficient role", body.Message)
}

func TestAdminUserLifecycle(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	email := gofakeit.Email()

	// Create.
	resp := st.PostJSON("/api/admin/users", map[string]string{
		"email": email, "password": randomPassword(),
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	st.DecodeJSON(resp, &created)
	require.NotEmpty(t, created.ID)

	// Read back; the default role is already attached.
	resp = st.Get("/api/admin/users/"+created.ID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail userDetail
	st.DecodeJSON(resp, &detail)
	assert.Equal(t, email, detail.Email)
	assert.Contains(t, detail.Roles, "User")
	assert.Nil(t, detail.LockedUntil)

	// Appears in the listing, unlocked.
	resp = st.Get("/api/admin/users", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []userSummary
	st.DecodeJSON(resp, &list)
	var found *userSummary
	for i := range list {
		if list[i].ID == created.ID {
			found = &list[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, email, found.Email)
	assert.False(t, found.IsLocked)

	// Update the email.
	newEmail := gofakeit.Email()
	resp = st.PutJSON("/api/admin/users/"+created.ID, map[string]string{
		"email": newEmail,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.Get("/api/admin/users/"+created.ID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st.DecodeJSON(resp, &detail)
	assert.Equal(t, newEmail, detail.Email)

	// Delete.
	resp = st.Delete("/api/admin/users/"+created.ID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.Get("/api/admin/users/"+created.ID, token)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminLockUnlock(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	email := gofakeit.Email()
	password := randomPassword()

	resp := st.PostJSON("/api/admin/users", map[string]string{
		"email": email, "password": password,
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	st.DecodeJSON(resp, &created)

	// Lock, then verify the login path rejects the account.
	resp = st.PostJSON("/api/admin/users/"+created.ID+"/lock", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	loginResp := st.PostJSON("/api/account/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusUnauthorized, loginResp.StatusCode)
	loginResp.Body.Close()

	resp = st.Get("/api/admin/users/"+created.ID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var detail userDetail
	st.DecodeJSON(resp, &detail)
	require.NotNil(t, detail.LockedUntil)
	assert.True(t, detail.LockedUntil.After(time.Now()))

	// Unlock reopens the account.
	resp = st.PostJSON("/api/admin/users/"+created.ID+"/unlock", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	loginResp = st.PostJSON("/api/account/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusOK, loginResp.StatusCode)
	loginResp.Body.Close()
}

func TestAdminUserNotFound(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	const missingID = "3f2a8a1e-0000-4000-8000-000000000000"

	for _, path := range []string{
		"/api/admin/users/" + missingID,
		"/api/admin/users/not-a-uuid",
	} {
		resp := st.Get(path, token)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body messageBody
		st.DecodeJSON(resp, &body)
		assert.Equal(t, "user not found", body.Message)
	}
}
