package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/qs3c/mirror_server/config"
)

func newTestOAuth(apiBase string) *GithubOAuth {
	g := NewGithubOAuth(config.GithubOAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost/callback",
	})
	g.apiBase = apiBase
	return g
}

func TestGithubOAuth_AuthURL(t *testing.T) {
	g := newTestOAuth(defaultAPIBase)

	url := g.AuthURL("state-123")

	assert.Contains(t, url, "github.com")
	assert.Contains(t, url, "client_id=client-id")
	assert.Contains(t, url, "state=state-123")
	assert.Contains(t, url, "scope=user%3Aemail")
}

func TestGithubOAuth_UserFromToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/user":
			json.NewEncoder(w).Encode(GithubUser{ID: 99, Login: "octo", Name: "Octo Cat"})
		case "/user/emails":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"email": "old@example.com", "primary": false, "verified": true},
				{"email": "octo@example.com", "primary": true, "verified": true},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	g := newTestOAuth(server.URL)
	user, err := g.userFromToken(context.Background(), &oauth2.Token{AccessToken: "test-token"})

	require.NoError(t, err)
	assert.Equal(t, int64(99), user.ID)
	assert.Equal(t, "octo@example.com", user.Email)
	assert.Equal(t, "Octo Cat", user.DisplayName())
}

func TestGithubOAuth_UserFromToken_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer server.Close()

	g := newTestOAuth(server.URL)
	_, err := g.userFromToken(context.Background(), &oauth2.Token{AccessToken: "bad"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestGithubUser_Fallbacks(t *testing.T) {
	user := GithubUser{ID: 5, Login: "ghost"}

	assert.Equal(t, "ghost", user.DisplayName())
	assert.Equal(t, "5+ghost@users.noreply.github.com", user.NoReplyEmail())
}
