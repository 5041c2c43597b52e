package app

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"vetor/api/internal/auth"
	"vetor/api/internal/util"
)

func TestBoardRoutesRequireSession(t *testing.T) {
	env := newBoardEnv(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/board"},
		{http.MethodPost, "/api/board"},
		{http.MethodPatch, "/api/board"},
		{http.MethodDelete, "/api/board"},
		{http.MethodGet, "/api/board/search?q=x"},
	}

	for _, route := range routes {
		req, err := http.NewRequest(route.method, env.server.URL+route.path, bytes.NewReader(nil))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s without token = %d, want 401", route.method, route.path, resp.StatusCode)
		}
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	env := newBoardEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/board", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newBoardEnv(t)

	expired, err := auth.IssueToken([]byte(testConfig().JWTSecret), auth.Claims{
		Sub:  "usr_1",
		Name: "Ana",
		Role: "client",
		JTI:  util.NewID("jti"),
		Exp:  time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/board", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestTokenSignedWithWrongSecretRejected(t *testing.T) {
	env := newBoardEnv(t)

	forged, err := auth.IssueToken([]byte("another-secret"), auth.Claims{
		Sub:  "usr_1",
		Name: "Ana",
		Role: "client",
		JTI:  util.NewID("jti"),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/board", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSessionEndpointReportsAuthState(t *testing.T) {
	env := newBoardEnv(t)

	resp, payload := env.request(t, http.MethodGet, "/api/session", nil)
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != true {
		t.Fatalf("authenticated session = %d %v", resp.StatusCode, payload)
	}
	if payload["userName"] != "Ana" {
		t.Fatalf("userName = %v", payload["userName"])
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/session", nil)
	anon, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer anon.Body.Close()
	if anon.StatusCode != http.StatusOK {
		t.Fatalf("anonymous session status = %d, want 200", anon.StatusCode)
	}
}

func TestRefreshRotation(t *testing.T) {
	env := newBoardEnv(t)

	session, err := env.service.CreateSession(t.Context(), "usr_1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	resp, payload := env.request(t, http.MethodPost, "/api/session/refresh", map[string]any{
		"refreshToken": session.RefreshToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d %v", resp.StatusCode, payload)
	}
	if payload["accessToken"] == "" || payload["refreshToken"] == session.RefreshToken {
		t.Fatalf("refresh payload = %v", payload)
	}

	resp, _ = env.request(t, http.MethodPost, "/api/session/refresh", map[string]any{
		"refreshToken": session.RefreshToken,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d, want 401", resp.StatusCode)
	}
}
