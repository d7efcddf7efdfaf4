package core

import "github.com/stickpm/sfu/internal/domain"

type SessionID string

// MemberSession binds a user's identity to its transport endpoints.
// This is what the registry stores and the gateway fans out to.
type MemberSession interface {
	User() *domain.User
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}

type memberSession struct {
	user   *domain.User
	signal SignalConnection
	media  MediaConnection
}

func NewMemberSession(user *domain.User) MemberSession {
	return &memberSession{user: user}
}

func (m *memberSession) User() *domain.User       { return m.user }
func (m *memberSession) Signal() SignalConnection { return m.signal }
func (m *memberSession) Media() MediaConnection   { return m.media }

func (m *memberSession) UpdateSignal(c SignalConnection) MemberSession {
	m.signal = c
	return m
}

func (m *memberSession) UpdateMedia(c MediaConnection) MemberSession {
	m.media = c
	return m
}
