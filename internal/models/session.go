package models

import "time"

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of a conversation history.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// SessionContext holds the facts a child has told us about themselves.
// Name and Age are nil until extracted from a self-introduction.
type SessionContext struct {
	SessionID string    `json:"session_id"`
	Name      *string   `json:"name,omitempty"`
	Age       *int      `json:"age,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionContext creates an empty context for the given session.
func NewSessionContext(sessionID string) *SessionContext {
	return &SessionContext{SessionID: sessionID, UpdatedAt: time.Now()}
}

// DisplayName returns the known name or an empty string.
func (s *SessionContext) DisplayName() string {
	if s == nil || s.Name == nil {
		return ""
	}
	return *s.Name
}

// KnownAge returns the known age and whether it is set.
func (s *SessionContext) KnownAge() (int, bool) {
	if s == nil || s.Age == nil {
		return 0, false
	}
	return *s.Age, true
}

// SetName records the child's name.
func (s *SessionContext) SetName(name string) {
	s.Name = &name
	s.UpdatedAt = time.Now()
}

// SetAge records the child's age.
func (s *SessionContext) SetAge(age int) {
	s.Age = &age
	s.UpdatedAt = time.Now()
}

// Clone returns a deep copy so callers cannot alias stored pointers.
func (s *SessionContext) Clone() *SessionContext {
	if s == nil {
		return nil
	}
	c := *s
	if s.Name != nil {
		n := *s.Name
		c.Name = &n
	}
	if s.Age != nil {
		a := *s.Age
		c.Age = &a
	}
	return &c
}
