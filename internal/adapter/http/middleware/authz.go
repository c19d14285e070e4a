package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	domain "github.com/hsmazur/Taberna3/internal/entity"
)

// Permissions carried in the token.
const (
	PermCart         = "cart"
	PermOrdersRead   = "orders.read"
	PermRatingsWrite = "ratings.write"
	PermOrdersAdmin  = "orders.admin"
	PermCatalogWrite = "catalog.write"
	PermUsersAdmin   = "users.admin"
)

// PermsFor maps a role to the permissions written into its token.
func PermsFor(role domain.Role) []string {
	perms := []string{PermCart, PermOrdersRead, PermRatingsWrite}
	if role == domain.RoleEmployee {
		perms = append(perms, PermOrdersAdmin, PermCatalogWrite, PermUsersAdmin)
	}
	return perms
}

const (
	ctxUserID = "auth.user_id"
	ctxRole   = "auth.role"
	ctxPerms  = "auth.perms"
)

type AuthzConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type Authz struct {
	cfg AuthzConfig
	now func() time.Time
}

func NewAuthz(cfg AuthzConfig) *Authz {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Authz{cfg: cfg, now: time.Now}
}

// Issue signs a token for the user with the permissions of its role.
func (a *Authz) Issue(u *domain.User) (string, time.Duration, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss":   a.cfg.Issuer,   // issuer
		"aud":   a.cfg.Audience, // audience
		"sub":   strconv.FormatInt(u.ID, 10),
		"iat":   now.Unix(),
		"nbf":   now.Unix(),
		"exp":   now.Add(a.cfg.TTL).Unix(),
		"role":  string(u.Role),
		"perms": PermsFor(u.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return "", 0, err
	}
	return signed, a.cfg.TTL, nil
}

// Require checks JWT and ensures all required permissions are present
func (a *Authz) Require(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			return
		}
		if !hasAll(perms(c), requiredPerms) {
			forbidden(c, "insufficient_scope", "missing required permissions")
			return
		}
		c.Next()
	}
}

// Optional authenticates the request when a bearer token is present and lets
// anonymous requests through. A present but invalid token is still rejected.
func (a *Authz) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		if a.authenticate(c) {
			c.Next()
		}
	}
}

func (a *Authz) authenticate(c *gin.Context) bool {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		unauth(c, "invalid_request", "missing bearer token")
		return false
	}

	raw := strings.TrimPrefix(auth, "Bearer ")
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.cfg.Secret), nil
	},
		jwt.WithLeeway(30*time.Second), // small clock skew
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithAudience(a.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		unauth(c, "invalid_token", "invalid jwt")
		return false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		unauth(c, "invalid_token", "claims parsing error")
		return false
	}
	sub, _ := claims.GetSubject()
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || id <= 0 {
		unauth(c, "invalid_token", "bad subject")
		return false
	}
	role, _ := claims["role"].(string)

	c.Set(ctxUserID, id)
	c.Set(ctxRole, domain.Role(role))
	c.Set(ctxPerms, extractPerms(claims))
	return true
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func Role(c *gin.Context) domain.Role {
	if v, ok := c.Get(ctxRole); ok {
		if r, ok := v.(domain.Role); ok {
			return r
		}
	}
	return ""
}

func perms(c *gin.Context) map[string]struct{} {
	if v, ok := c.Get(ctxPerms); ok {
		if p, ok := v.(map[string]struct{}); ok {
			return p
		}
	}
	return nil
}

func extractPerms(claims jwt.MapClaims) map[string]struct{} {
	out := map[string]struct{}{}
	if arr, ok := claims["perms"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok && s != "" {
				out[s] = struct{}{}
			}
		}
	}
	return out
}

func hasAll(have map[string]struct{}, req []string) bool {
	for _, r := range req {
		if _, ok := have[r]; !ok {
			return false
		}
	}
	return true
}

func unauth(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code, "error_description": desc})
}

func forbidden(c *gin.Context, code, desc string) {
	c.Header("WWW-Authenticate", `Bearer error="`+code+`", error_description="`+desc+`"`)
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code, "error_description": desc})
}
