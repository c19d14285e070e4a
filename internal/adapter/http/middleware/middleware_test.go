package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

func init() { gin.SetMode(gin.TestMode) }

func testAuthz() *Authz {
	return NewAuthz(AuthzConfig{Secret: "test-secret", Issuer: "taberna", Audience: "taberna-api", TTL: time.Hour})
}

func bearer(t *testing.T, a *Authz, id int64, role domain.Role) string {
	t.Helper()
	tok, _, err := a.Issue(&domain.User{ID: id, Role: role})
	require.NoError(t, err)
	return "Bearer " + tok
}

func whoami(c *gin.Context) {
	id, _ := UserID(c)
	c.JSON(http.StatusOK, gin.H{"user_id": id, "role": Role(c)})
}

func TestRequirePermissions(t *testing.T) {
	a := testAuthz()
	r := gin.New()
	r.GET("/orders", a.Require(PermOrdersAdmin), whoami)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"client lacks admin", bearer(t, a, 7, domain.RoleClient), http.StatusForbidden},
		{"employee", bearer(t, a, 8, domain.RoleEmployee), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/orders", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRequireRejectsForeignIssuerAndExpired(t *testing.T) {
	a := testAuthz()
	r := gin.New()
	r.GET("/x", a.Require(), whoami)

	other := NewAuthz(AuthzConfig{Secret: "test-secret", Issuer: "someone-else", Audience: "taberna-api"})
	expired := testAuthz()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	for _, az := range []*Authz{other, expired} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", bearer(t, az, 1, domain.RoleUser))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestIssueCarriesSubjectAndRole(t *testing.T) {
	a := testAuthz()
	r := gin.New()
	r.GET("/me", a.Require(PermCart), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, a, 42, domain.RoleEmployee))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.UserID)
	assert.Equal(t, "employee", body.Role)

	tok, _, _ := a.Issue(&domain.User{ID: 42, Role: domain.RoleUser})
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	require.NoError(t, err)
	sub, _ := parsed.Claims.GetSubject()
	assert.Equal(t, "42", sub)
}

type fakeGuests struct {
	next  int64
	err   error
	calls int
}

func (f *fakeGuests) CreateGuest(context.Context) (*domain.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	return &domain.User{ID: 100 + f.next, Guest: true, Role: domain.RoleGuest}, nil
}

func buyerRouter(a *Authz, g GuestCreator) *gin.Engine {
	r := gin.New()
	r.Use(sessions.Sessions("taberna", cookie.NewStore([]byte("0123456789abcdef0123456789abcdef"))))
	show := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"buyer_id": BuyerID(c)})
	}
	r.GET("/cart", a.Optional(), Buyer(g), show)
	r.GET("/known", a.Optional(), KnownBuyer(), show)
	return r
}

func buyerOf(t *testing.T, w *httptest.ResponseRecorder) int64 {
	t.Helper()
	var body struct {
		BuyerID int64 `json:"buyer_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.BuyerID
}

func TestBuyerGuestSessionIsSticky(t *testing.T) {
	g := &fakeGuests{}
	r := buyerRouter(testAuthz(), g)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusOK, w.Code)
	first := buyerOf(t, w)
	assert.Equal(t, int64(101), first)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, first, buyerOf(t, w2))
	assert.Equal(t, 1, g.calls)
}

func TestBuyerAuthenticatedUserSkipsGuest(t *testing.T) {
	a := testAuthz()
	g := &fakeGuests{}
	r := buyerRouter(a, g)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", bearer(t, a, 7, domain.RoleUser))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), buyerOf(t, w))
	assert.Zero(t, g.calls)

	bad := httptest.NewRequest(http.MethodGet, "/cart", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, bad)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKnownBuyerNeverCreatesGuest(t *testing.T) {
	g := &fakeGuests{}
	r := buyerRouter(testAuthz(), g)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/known", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, buyerOf(t, w))
	assert.Empty(t, w.Result().Cookies())
	assert.Zero(t, g.calls)

	// an existing guest session is still recognised
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
	guest := buyerOf(t, w)
	req := httptest.NewRequest(http.MethodGet, "/known", nil)
	for _, ck := range w.Result().Cookies() {
		req.AddCookie(ck)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, guest, buyerOf(t, w))
	assert.Equal(t, 1, g.calls)
}

func TestBuyerGuestCreationFailure(t *testing.T) {
	r := buyerRouter(testAuthz(), &fakeGuests{err: errors.New("db down")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLoggingRedactsButKeepsBody(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Logging(l))
	var seen map[string]string
	r.POST("/v1/token", func(c *gin.Context) {
		_ = c.ShouldBindJSON(&seen)
		c.JSON(http.StatusOK, gin.H{"access_token": "signed"})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/token", bytes.NewBufferString(`{"email":"ana@example.com","password":"hunter22"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hunter22", seen["password"], "handler must see the original body")
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	logged, _ := io.ReadAll(&buf)
	assert.NotContains(t, string(logged), "hunter22")
	assert.NotContains(t, string(logged), "signed")
	assert.Contains(t, string(logged), "***redacted***")
}
