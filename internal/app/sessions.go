// Package app holds process-wide application services.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/stickpm/sfu/internal/core"
	"github.com/stickpm/sfu/internal/domain"
)

type sessionEntry struct {
	RoomID  domain.RoomID
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// SessionRegistry maps session ids to their signaling/media sessions and
// current room. Constructed once at startup and handed to every component
// that needs it.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	users    map[core.SessionID]*domain.User
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[core.SessionID]*sessionEntry),
		users:    make(map[core.SessionID]*domain.User),
	}
}

func (r *SessionRegistry) GetOrCreateUser(sid core.SessionID) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[sid]; ok {
		return u
	}
	u := &domain.User{ID: domain.UserID(sid), Username: "guest", Role: domain.RoleGuest}
	r.users[sid] = u
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("created new user")
	return u
}

// ResolveParticipantIdentity implements core.IdentityResolver.
func (r *SessionRegistry) ResolveParticipantIdentity(sid core.SessionID) *domain.User {
	return r.GetOrCreateUser(sid)
}

func (r *SessionRegistry) UpdateUsername(sid core.SessionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[sid]
	if !ok {
		return domain.ErrUsernameEmpty
	}
	if err := u.SetUsername(name); err != nil {
		return err
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("username", name).Msg("updated username")
	return nil
}

func (r *SessionRegistry) BindSignal(sid core.SessionID, sess core.MemberSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("bound signal")
}

func (r *SessionRegistry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *SessionRegistry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("unbind session")
}

func (r *SessionRegistry) RoomOf(sid core.SessionID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.RoomID == "" {
		return "", nil, false
	}
	return entry.RoomID, entry.Session, true
}

func (r *SessionRegistry) UpdateRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomID = roomID
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("room", string(roomID)).Msg("updated room")
	return true
}

func (r *SessionRegistry) LeaveRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok {
		entry.RoomID = ""
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("removed room association")
}

type MemberSnap struct {
	SID     core.SessionID
	Session core.MemberSession
}

// MembersOfRoom snapshots the current members; fan-out iterates this copy,
// so a member added mid-iteration simply catches up at its own join time.
func (r *SessionRegistry) MembersOfRoom(roomID domain.RoomID) []MemberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSnap, 0, len(r.sessions))
	for sid, e := range r.sessions {
		if e.RoomID == roomID {
			out = append(out, MemberSnap{SID: sid, Session: e.Session})
		}
	}
	return out
}

func (r *SessionRegistry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("canceled session")
	return true
}
