package tests

import (
	"net/http"
	"testing"

	"identity/tests/suite"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func createRole(t *testing.T, st *suite.Suite, token, name string) string {
	t.Helper()

	resp := st.PostJSON("/api/admin/roles", map[string]string{"roleName": name}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	st.DecodeJSON(resp, &created)
	require.NotEmpty(t, created.ID)
	return created.ID
}

func TestRolesSeededOnStartup(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	resp := st.Get("/api/admin/roles", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []roleResponse
	st.DecodeJSON(resp, &list)

	names := make([]string, 0, len(list))
	for _, role := range list {
		names = append(names, role.Name)
	}
	assert.Contains(t, names, "Admin")
	assert.Contains(t, names, "User")
}

func TestRoleLifecycle(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	roleID := createRole(t, st, token, "Auditor")

	// Duplicate names are rejected.
	resp := st.PostJSON("/api/admin/roles", map[string]string{"roleName": "Auditor"}, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fieldErrs fieldErrorsBody
	st.DecodeJSON(resp, &fieldErrs)
	assert.Contains(t, fieldErrs.Errors["roleName"], "role already exists")

	// Read back.
	resp = st.Get("/api/admin/roles/"+roleID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var role roleResponse
	st.DecodeJSON(resp, &role)
	assert.Equal(t, "Auditor", role.Name)

	// Rename.
	resp = st.PutJSON("/api/admin/roles/"+roleID, map[string]string{"newRoleName": "Reviewer"}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.Get("/api/admin/roles/"+roleID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st.DecodeJSON(resp, &role)
	assert.Equal(t, "Reviewer", role.Name)

	// Delete.
	resp = st.Delete("/api/admin/roles/"+roleID, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.Get("/api/admin/roles/"+roleID, token)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestReservedRolesProtected(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	resp := st.Get("/api/admin/roles", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []roleResponse
	st.DecodeJSON(resp, &list)

	byName := map[string]string{}
	for _, role := range list {
		byName[role.Name] = role.ID
	}
	require.Contains(t, byName, "Admin")
	require.Contains(t, byName, "User")

	// Neither reserved role can be renamed.
	for _, name := range []string{"Admin", "User"} {
		resp := st.PutJSON("/api/admin/roles/"+byName[name], map[string]string{
			"newRoleName": "Something",
		}, token)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body messageBody
		st.DecodeJSON(resp, &body)
		assert.Equal(t, "system role cannot be renamed", body.Message)
	}

	// The Admin role cannot be deleted.
	resp = st.Delete("/api/admin/roles/"+byName["Admin"], token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body messageBody
	st.DecodeJSON(resp, &body)
	assert.Equal(t, "the Admin role cannot be deleted", body.Message)
}

func TestRoleMembership(t *testing.T) {
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

	createRole(t, st, token, "Support")

	// Assign, then the membership listing contains the user.
	resp = st.PostJSON("/api/admin/roles/Support/assign/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Assigning twice is an error.
	resp = st.PostJSON("/api/admin/roles/Support/assign/"+created.ID, nil, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body messageBody
	st.DecodeJSON(resp, &body)
	assert.Equal(t, "role already assigned", body.Message)

	resp = st.Get("/api/admin/roles/Support/users", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var members []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	st.DecodeJSON(resp, &members)
	require.Len(t, members, 1)
	assert.Equal(t, created.ID, members[0].ID)
	assert.Equal(t, email, members[0].Email)

	// Remove, then the listing is empty again.
	resp = st.PostJSON("/api/admin/roles/Support/remove/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.PostJSON("/api/admin/roles/Support/remove/"+created.ID, nil, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	st.DecodeJSON(resp, &body)
	assert.Equal(t, "role not assigned", body.Message)

	resp = st.Get("/api/admin/roles/Support/users", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st.DecodeJSON(resp, &members)
	assert.Empty(t, members)
}

func TestAssignUnknownRole(t *testing.T) {
	_, st := suite.New(t)
	token := adminToken(t, st)

	email := gofakeit.Email()

	resp := st.PostJSON("/api/admin/users", map[string]string{
		"email": email, "password": randomPassword(),
	}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		ID string `json:"id"`
	}
	st.DecodeJSON(resp, &created)

	resp = st.PostJSON("/api/admin/roles/Ghost/assign/"+created.ID, nil, token)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body messageBody
	st.DecodeJSON(resp, &body)
	assert.Equal(t, "role does not exist", body.Message)
}

func TestAdminRoleClaimWins(t *testing.T) {
	ctx, st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()

	userID, err := st.App.Auth.Register(ctx, email, password)
	require.NoError(t, err)
	require.NoError(t, st.Storage.AssignRole(ctx, userID, "Admin"))

	pair := login(t, st, email, password)
	claims := parseClaims(t, st, pair.AccessToken)

	// The user holds both Admin and User; the token carries Admin.
	assert.Equal(t, "Admin", claims["role"].(string))
}
