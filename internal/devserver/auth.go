package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/teris-io/shortid"

	"github.com/butterchat/butterchat/internal/backend/wire"
	"github.com/butterchat/butterchat/internal/types"
)

const defaultExp = time.Hour * 24

const (
	subClaim    = "sub"
	nameClaim   = "name"
	avatarClaim = "avatar"
	expClaim    = "exp"
)

type contextKey string

const userKey contextKey = "user"

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(userKey).(types.User)
	return user, ok
}

// grant is a pending interactive sign-in. It resolves to a seeded
// account after the configured delay, standing in for the provider's
// popup.
type grant struct {
	id       string
	user     types.User
	resolved bool
}

type grantRegistry struct {
	mu     sync.Mutex
	grants map[string]*grant
}

func newGrantRegistry() *grantRegistry {
	return &grantRegistry{grants: make(map[string]*grant)}
}

func (g *grantRegistry) create(user types.User) (string, error) {
	sid, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate grant id: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[sid] = &grant{id: sid, user: user}
	return sid, nil
}

func (g *grantRegistry) resolve(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gr, ok := g.grants[id]; ok {
		gr.resolved = true
	}
}

// take returns the grant's user once resolved, removing the grant so
// a token is issued at most once per grant.
func (g *grantRegistry) take(id string) (types.User, bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	gr, ok := g.grants[id]
	if !ok {
		return types.User{}, false, false
	}
	if !gr.resolved {
		return types.User{}, true, false
	}
	delete(g.grants, id)
	return gr.user, true, true
}

// signIn starts an interactive grant. The grant auto-resolves after
// the configured delay.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req wire.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Provider == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	grantId, err := s.grants.create(s.accounts[0].User)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.log.Printf("sign-in grant %q opened for provider %q", grantId, req.Provider)
	time.AfterFunc(s.grantDelay, func() {
		s.grants.resolve(grantId)
		s.log.Printf("sign-in grant %q resolved", grantId)
	})

	s.writeJson(w, http.StatusOK, wire.SignInResponse{GrantId: grantId})
}

// pollSignIn answers 202 while the grant is unresolved and 200 with a
// session token once it is.
func (s *Server) pollSignIn(w http.ResponseWriter, r *http.Request) {
	grantId := r.URL.Query().Get("grant_id")
	if grantId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, found, resolved := s.grants.take(grantId)
	if !found {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !resolved {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.issueToken(w, user)
}

// login is the direct password grant against the seeded accounts.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req wire.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	for _, account := range s.accounts {
		if account.Email != req.Email {
			continue
		}
		if !verifyPassword(account.PasswordHash, req.Password) {
			break
		}
		s.issueToken(w, account.User)
		return
	}

	errResp := NewUnauthorizedError()
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *Server) issueToken(w http.ResponseWriter, user types.User) {
	token, err := createToken(user, s.signingKey, defaultExp)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.telemetry.Event("token_issued", map[string]any{"user_id": user.Id})
	s.writeJson(w, http.StatusOK, wire.TokenResponse{Token: token, User: user})
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.userFromRequest(r)
		if err != nil {
			s.log.Println("failed to authenticate request:", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) userFromRequest(r *http.Request) (types.User, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return types.User{}, fmt.Errorf("missing bearer token")
	}

	return verifyToken(tokenString, s.signingKey)
}

func createToken(user types.User, signingKey []byte, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		subClaim:    user.Id,
		nameClaim:   user.DisplayName,
		avatarClaim: user.AvatarURL,
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(signingKey)
}

func verifyToken(tokenString string, signingKey []byte) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return types.User{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	sub, ok := claims[subClaim].(string)
	if !ok || sub == "" {
		return types.User{}, fmt.Errorf("invalid subject claim")
	}

	name, _ := claims[nameClaim].(string)
	avatar, _ := claims[avatarClaim].(string)

	return types.User{Id: sub, DisplayName: name, AvatarURL: avatar}, nil
}
