package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionName = "studio_session"

	keyUserID      = "user_id"
	keyEmail       = "email"
	keyActiveImage = "active_image"
)

// Sessions keeps the signed-in user and the image shown in the preview pane
// in a cookie session.
type Sessions struct {
	store sessions.Store
}

func NewSessions(store sessions.Store) *Sessions {
	return &Sessions{store: store}
}

// NewCookieStore builds the cookie store shared by Sessions and gothic.
func NewCookieStore(secret string, maxAge int, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(maxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	return store
}

func (s *Sessions) get(r *http.Request) (*sessions.Session, error) {
	return s.store.Get(r, SessionName)
}

// SignIn records user as the session owner and resets the preview pane.
func (s *Sessions) SignIn(w http.ResponseWriter, r *http.Request, user Identity) error {
	session, err := s.get(r)
	if err != nil && session == nil {
		return err
	}
	session.Values[keyUserID] = user.ID
	session.Values[keyEmail] = user.Email
	delete(session.Values, keyActiveImage)
	return session.Save(r, w)
}

// SignOut expires the session cookie.
func (s *Sessions) SignOut(w http.ResponseWriter, r *http.Request) error {
	session, err := s.get(r)
	if err != nil && session == nil {
		return err
	}
	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// Identity returns the signed-in user, if any.
func (s *Sessions) Identity(r *http.Request) (Identity, bool) {
	session, err := s.get(r)
	if err != nil {
		return Identity{}, false
	}
	id, _ := session.Values[keyUserID].(string)
	if id == "" {
		return Identity{}, false
	}
	email, _ := session.Values[keyEmail].(string)
	return Identity{ID: id, Email: email}, true
}

// ActiveImage returns the URL currently shown in the preview pane.
func (s *Sessions) ActiveImage(r *http.Request) string {
	session, err := s.get(r)
	if err != nil {
		return ""
	}
	url, _ := session.Values[keyActiveImage].(string)
	return url
}

// SetActiveImage replaces the preview pane URL. An empty url clears it.
func (s *Sessions) SetActiveImage(w http.ResponseWriter, r *http.Request, url string) error {
	session, err := s.get(r)
	if err != nil && session == nil {
		return err
	}
	if url == "" {
		delete(session.Values, keyActiveImage)
	} else {
		session.Values[keyActiveImage] = url
	}
	return session.Save(r, w)
}
