package session

import (
	"strings"

	"github.com/s00inx/zhttp/internal/httpproto"
)

// cookieName matches session_manager.cpp's literal "session_id" cookie key.
const cookieName = "session_id="

// Manager ties a Store to the request/response cycle: Get loads the
// session named by the request's cookie, creating and issuing a new one if
// absent or expired, exactly as session_manager.cpp's get_session does.
type Manager struct {
	store   Store
	timeout int
}

// NewManager returns a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Get loads-or-creates the session for req, writing a Set-Cookie header onto
// resp when a new session is issued.
func (m *Manager) Get(req *httpproto.Request, resp *httpproto.Response) (*Session, error) {
	id := sessionIDFromRequest(req)

	if id != "" {
		s, err := m.store.Load(id)
		if err != nil {
			return nil, err
		}
		if s != nil {
			if s.Expired() {
				_ = m.store.Remove(id)
			} else {
				s.Refresh()
				return s, m.store.Store(s)
			}
		}
	}

	s := New(NewID(), DefaultTimeout)
	setSessionCookie(resp, s.ID())
	if err := m.store.Store(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy removes a session by id.
func (m *Manager) Destroy(id string) error {
	return m.store.Remove(id)
}

// Update persists changes made to an already-loaded session.
func (m *Manager) Update(s *Session) error {
	return m.store.Store(s)
}

// CleanupExpired sweeps the underlying store for expired sessions.
func (m *Manager) CleanupExpired() error {
	return m.store.ClearExpired()
}

func sessionIDFromRequest(req *httpproto.Request) string {
	cookie := req.Header("Cookie")
	if cookie == "" {
		return ""
	}
	idx := strings.Index(cookie, cookieName)
	if idx == -1 {
		return ""
	}
	rest := cookie[idx+len(cookieName):]
	if end := strings.IndexByte(rest, ';'); end != -1 {
		return rest[:end]
	}
	return rest
}

func setSessionCookie(resp *httpproto.Response, id string) {
	resp.SetHeader("Set-Cookie", cookieName+id+"; Path=/; HttpOnly")
}
