package devserver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butterchat/butterchat/internal/backend/memstore"
	"github.com/butterchat/butterchat/internal/backend/wire"
	"github.com/butterchat/butterchat/internal/config"
	"github.com/butterchat/butterchat/internal/telemetry"
	"github.com/butterchat/butterchat/internal/testutil"
	"github.com/butterchat/butterchat/internal/types"
)

var testSigningSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

func newTestServer(t *testing.T, grantDelay time.Duration) *Server {
	t.Helper()

	cfg, err := config.NewServerConfig("localhost:0", testSigningSecret, nil, grantDelay)
	require.NoError(t, err)

	logger := testutil.TestLogger(t)
	s, err := NewServer(logger, memstore.NewStore(logger), telemetry.Nop{}, cfg)
	require.NoError(t, err)
	return s
}

func postJson(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func Test_signIn_grantFlow(t *testing.T) {
	s := newTestServer(t, 20*time.Millisecond)
	h := s.Handler()

	w := postJson(t, h, "/api/auth/signin", wire.SignInRequest{Provider: "google"})
	require.Equal(t, http.StatusOK, w.Code)

	var signInResp wire.SignInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signInResp))
	require.NotEmpty(t, signInResp.GrantId)

	poll := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/signin/poll?grant_id="+signInResp.GrantId, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	require.Equal(t, http.StatusAccepted, poll().Code, "grant unresolved before the delay elapses")

	var tok wire.TokenResponse
	testutil.WaitFor(t, time.Second, func() bool {
		w := poll()
		if w.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
		return true
	}, "grant resolution")

	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, "dev-alice", tok.User.Id)

	assert.Equal(t, http.StatusNotFound, poll().Code, "a grant issues a token at most once")
}

func Test_signIn_badRequests(t *testing.T) {
	s := newTestServer(t, 0)
	h := s.Handler()

	w := postJson(t, h, "/api/auth/signin", wire.SignInRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "provider required")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/signin/poll", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "grant id required")

	req = httptest.NewRequest(http.MethodGet, "/api/auth/signin/poll?grant_id=unknown", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_login(t *testing.T) {
	s := newTestServer(t, 0)
	h := s.Handler()

	t.Run("valid credentials", func(t *testing.T) {
		w := postJson(t, h, "/api/auth/login", wire.LoginRequest{Email: "bob@butterchat.dev", Password: "dev-bob"})
		require.Equal(t, http.StatusOK, w.Code)

		var tok wire.TokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
		assert.Equal(t, "dev-bob", tok.User.Id)

		user, err := verifyToken(tok.Token, s.signingKey)
		require.NoError(t, err)
		assert.Equal(t, "dev-bob", user.Id)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := postJson(t, h, "/api/auth/login", wire.LoginRequest{Email: "bob@butterchat.dev", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := postJson(t, h, "/api/auth/login", wire.LoginRequest{Email: "nobody@butterchat.dev", Password: "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func Test_authMiddleware(t *testing.T) {
	s := newTestServer(t, 0)

	handler := s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		require.True(t, ok)
		s.writeJson(w, http.StatusOK, user)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := createToken(types.User{Id: "u1", DisplayName: "U"}, s.signingKey, time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var user types.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		assert.Equal(t, "u1", user.Id)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()
		handler(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func Test_createToken_expires(t *testing.T) {
	s := newTestServer(t, 0)

	token, err := createToken(types.User{Id: "u1"}, s.signingKey, -time.Minute)
	require.NoError(t, err)

	_, err = verifyToken(token, s.signingKey)
	assert.Error(t, err, "expired token must be rejected")
}
