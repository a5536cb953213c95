package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestAuthorizedUserJSON(t *testing.T) {
	cfg := &oauth2.Config{ClientID: "client", ClientSecret: "secret"}

	b, err := authorizedUserJSON(cfg, &oauth2.Token{AccessToken: "a", RefreshToken: "r"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, map[string]string{
		"type":          "authorized_user",
		"client_id":     "client",
		"client_secret": "secret",
		"refresh_token": "r",
	}, got)
}

func TestAuthorizedUserJSON_NeedsRefreshToken(t *testing.T) {
	_, err := authorizedUserJSON(&oauth2.Config{}, &oauth2.Token{AccessToken: "a"})
	assert.ErrorContains(t, err, "refresh token")

	_, err = authorizedUserJSON(&oauth2.Config{}, nil)
	assert.Error(t, err)
}

func TestLoadClientSecret(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", `{"installed":{}}`)
	b, err := loadClientSecret()
	require.NoError(t, err)
	assert.JSONEq(t, `{"installed":{}}`, string(b))

	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")
	_, err = loadClientSecret()
	assert.Error(t, err)
}
