package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"photogallery/src/app"
	cfg "photogallery/src/configuration"
)

const userContextKey = "user"

type (
	// TokenVerifier turns a session token into the user it was issued to.
	TokenVerifier interface {
		Verify(ctx context.Context, rawToken string) (app.User, error)
	}

	// OIDCVerifier checks ID tokens issued by the configured provider.
	OIDCVerifier struct {
		verifier *oidc.IDTokenVerifier
	}

	// HMACVerifier checks locally signed tokens. Used when no identity
	// provider is configured.
	HMACVerifier struct {
		secret []byte
	}

	userClaims struct {
		jwt.RegisteredClaims
		Username string `json:"preferred_username,omitempty"`
		Nickname string `json:"nickname,omitempty"`
		Email    string `json:"email,omitempty"`
		Name     string `json:"name,omitempty"`
		Picture  string `json:"picture,omitempty"`
	}

	AuthHandler struct {
		verifier TokenVerifier
		log      logrus.FieldLogger
	}
)

func (c userClaims) user() app.User {
	username := c.Username
	if username == "" {
		username = c.Nickname
	}
	return app.User{
		ID:       c.Subject,
		Username: username,
		Email:    c.Email,
		Name:     c.Name,
		Picture:  c.Picture,
	}
}

// ErrNoTokenSecret is returned when neither AUTH_HOST nor AUTH_JWT_SECRET is
// set.
var ErrNoTokenSecret = errors.New("set AUTH_HOST or AUTH_JWT_SECRET")

// NewTokenVerifier picks the OIDC verifier when an issuer is configured and
// the HMAC verifier otherwise.
func NewTokenVerifier(ctx context.Context, config *cfg.Properties) (TokenVerifier, error) {
	if config.Auth.Host == "" {
		if config.Auth.JWTSecret == "" {
			return nil, ErrNoTokenSecret
		}
		return NewHMACVerifier(config.Auth.JWTSecret), nil
	}
	return NewOIDCVerifier(ctx, config.Auth.Host, config.Auth.ID)
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "creating OIDC provider")
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (o *OIDCVerifier) Verify(ctx context.Context, rawToken string) (app.User, error) {
	idToken, err := o.verifier.Verify(ctx, rawToken)
	if err != nil {
		return app.User{}, errors.Wrap(err, "verifying ID token")
	}
	var claims userClaims
	if err := idToken.Claims(&claims); err != nil {
		return app.User{}, errors.Wrap(err, "parse ID token claims")
	}
	claims.Subject = idToken.Subject
	return claims.user(), nil
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (h *HMACVerifier) Verify(_ context.Context, rawToken string) (app.User, error) {
	var claims userClaims
	_, err := jwt.ParseWithClaims(rawToken, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return app.User{}, errors.Wrap(err, "verifying token")
	}
	if claims.Subject == "" {
		return app.User{}, errors.New("token has no subject")
	}
	return claims.user(), nil
}

// NewJWTAccessToken signs a token for subject that HMACVerifier accepts.
func NewJWTAccessToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoTokenSecret
	}
	now := time.Now()
	claims := userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: subject,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token, errors.Wrap(err, "sign token")
}

func NewAuthHandler(verifier TokenVerifier, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{verifier: verifier, log: log}
}

// bearerToken accepts "Bearer <t>", a raw token, or the token query
// parameter used by websocket clients.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return header
	}
	return c.Query("token")
}

// Authorize rejects requests without a valid token and stores the caller
// in the context.
func (a *AuthHandler) Authorize(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "error", "error": "no token provided"})
		return
	}
	user, err := a.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		a.log.WithError(err).Debug("token rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "error", "error": "invalid token"})
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func currentUser(c *gin.Context) app.User {
	user, _ := c.MustGet(userContextKey).(app.User)
	return user
}

func (a *AuthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (a *AuthHandler) Account(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": currentUser(c)})
}
