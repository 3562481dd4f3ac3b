package tests

import (
	"net/http"
	"testing"

	"identity/tests/suite"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profileResponse struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func TestProfileMe(t *testing.T) {
	_, st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()
	register(t, st, email, password)
	pair := login(t, st, email, password)

	resp := st.Get("/api/profile/me", pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile profileResponse
	st.DecodeJSON(resp, &profile)
	assert.Equal(t, email, profile.Email)
	assert.Equal(t, []string{"User"}, profile.Roles)

	// No token, garbage token, wrong scheme.
	for _, token := range []string{"", "not-a-jwt"} {
		resp := st.Get("/api/profile/me", token)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body messageBody
		st.DecodeJSON(resp, &body)
		assert.Equal(t, "invalid or missing token", body.Message)
	}
}

func TestProfileUpdateEmail(t *testing.T) {
	_, st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()
	register(t, st, email, password)
	pair := login(t, st, email, password)

	otherEmail := gofakeit.Email()
	register(t, st, otherEmail, randomPassword())

	// Taken address is rejected.
	resp := st.PutJSON("/api/profile/me", map[string]string{"email": otherEmail}, pair.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fieldErrs fieldErrorsBody
	st.DecodeJSON(resp, &fieldErrs)
	assert.Contains(t, fieldErrs.Errors["email"], "email is already in use")

	// A fresh address goes through and shows up on the profile.
	newEmail := gofakeit.Email()
	resp = st.PutJSON("/api/profile/me", map[string]string{"email": newEmail}, pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = st.Get("/api/profile/me", pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile profileResponse
	st.DecodeJSON(resp, &profile)
	assert.Equal(t, newEmail, profile.Email)
}

func TestProfileChangePassword(t *testing.T) {
	_, st := suite.New(t)

	email := gofakeit.Email()
	password := randomPassword()
	register(t, st, email, password)
	pair := login(t, st, email, password)

	newPassword := randomPassword()

	// Wrong current password.
	resp := st.PostJSON("/api/profile/change-password", map[string]string{
		"currentPassword": randomPassword(),
		"newPassword":     newPassword,
	}, pair.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fieldErrs fieldErrorsBody
	st.DecodeJSON(resp, &fieldErrs)
	assert.Contains(t, fieldErrs.Errors["currentPassword"], "current password does not match")

	// Weak new password is rejected by the policy.
	resp = st.PostJSON("/api/profile/change-password", map[string]string{
		"currentPassword": password,
		"newPassword":     "weak",
	}, pair.AccessToken)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Correct current password.
	resp = st.PostJSON("/api/profile/change-password", map[string]string{
		"currentPassword": password,
		"newPassword":     newPassword,
	}, pair.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Old credentials are dead, new ones work.
	resp = st.PostJSON("/api/account/login", map[string]string{
		"email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	login(t, st, email, newPassword)
}
