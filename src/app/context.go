package app

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pkg/errors"
)

// StateStore is a flat client-local key/value store.
type StateStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Clear() error
}

const (
	keyToken        = "token"
	keyDarkMode     = "darkMode"
	keyChatHistory  = "chatHistory"
	keyChatbotOpen  = "chatbotOpen"
	keyProfileImage = "profileImage"
)

// Chat roles.
const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// ChatMessage is one turn of the chatbot conversation.
type ChatMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// AppContext is the client-local state shared by every command. It is
// loaded once, mutated in memory and written back with Save.
type AppContext struct {
	store StateStore

	Token           string
	DarkMode        bool
	ChatHistory     []ChatMessage
	ChatbotOpen     bool
	ProfileImageURL string
}

// LoadAppContext reads every known entry from store. Missing entries keep
// their zero value.
func LoadAppContext(store StateStore) (*AppContext, error) {
	c := &AppContext{store: store}
	var err error
	if c.Token, _, err = store.Get(keyToken); err != nil {
		return nil, errors.Wrap(err, "read token")
	}
	if c.DarkMode, err = c.readBool(keyDarkMode); err != nil {
		return nil, err
	}
	if c.ChatbotOpen, err = c.readBool(keyChatbotOpen); err != nil {
		return nil, err
	}
	if c.ProfileImageURL, _, err = store.Get(keyProfileImage); err != nil {
		return nil, errors.Wrap(err, "read profile image")
	}
	raw, ok, err := store.Get(keyChatHistory)
	if err != nil {
		return nil, errors.Wrap(err, "read chat history")
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.ChatHistory); err != nil {
			// A corrupt history is dropped rather than blocking startup.
			c.ChatHistory = nil
		}
	}
	return c, nil
}

func (c *AppContext) readBool(key string) (bool, error) {
	raw, ok, err := c.store.Get(key)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", key)
	}
	if !ok {
		return false, nil
	}
	v, _ := strconv.ParseBool(raw)
	return v, nil
}

// Save writes every entry back to the store.
func (c *AppContext) Save() error {
	history, err := json.Marshal(c.ChatHistory)
	if err != nil {
		return errors.Wrap(err, "encode chat history")
	}
	entries := []struct{ key, value string }{
		{keyToken, c.Token},
		{keyDarkMode, strconv.FormatBool(c.DarkMode)},
		{keyChatbotOpen, strconv.FormatBool(c.ChatbotOpen)},
		{keyProfileImage, c.ProfileImageURL},
		{keyChatHistory, string(history)},
	}
	for _, e := range entries {
		if e.value == "" {
			if err := c.store.Delete(e.key); err != nil {
				return errors.Wrapf(err, "delete %s", e.key)
			}
			continue
		}
		if err := c.store.Set(e.key, e.value); err != nil {
			return errors.Wrapf(err, "write %s", e.key)
		}
	}
	return nil
}

// Clear wipes the store and the in-memory state. Used on logout and when
// the backend rejects the token.
func (c *AppContext) Clear() error {
	store := c.store
	*c = AppContext{store: store}
	return errors.Wrap(store.Clear(), "clear state")
}

// Session returns the stored session, or ErrUnauthenticated when there is
// none or it has expired.
func (c *AppContext) Session(now time.Time) (Session, error) {
	if c.Token == "" {
		return Session{}, ErrUnauthenticated
	}
	s := ParseSession(c.Token)
	if !s.Valid(now) {
		return Session{}, errors.Wrap(ErrUnauthenticated, "session expired")
	}
	return s, nil
}

// Session is a bearer token plus the expiry read from it, when it carries one.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// ParseSession reads the claims of a JWT without verifying its signature;
// the backend does that. Opaque tokens yield a session with no expiry.
func ParseSession(token string) Session {
	s := Session{Token: token}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return s
	}
	s.Subject = claims.Subject
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
