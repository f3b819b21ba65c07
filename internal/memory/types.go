package memory

import "slices"

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may be appended to a session.
func (r Role) Valid() bool { return r == RoleUser || r == RoleAssistant }

// Turn is one message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is everything stored for one chat.
type Session struct {
	Current []Turn            `json:"current_session"`
	Saved   map[string][]Turn `json:"saved_sessions"`
}

// NewSession returns an empty session with both fields present.
func NewSession() *Session {
	return &Session{Current: []Turn{}, Saved: map[string][]Turn{}}
}

func (s *Session) normalize() {
	if s.Current == nil {
		s.Current = []Turn{}
	}
	if s.Saved == nil {
		s.Saved = map[string][]Turn{}
	}
	for name, turns := range s.Saved {
		if turns == nil {
			s.Saved[name] = []Turn{}
		}
	}
}

// Clone returns a deep copy of s.
func (s *Session) Clone() Session {
	out := Session{
		Current: cloneTurns(s.Current),
		Saved:   make(map[string][]Turn, len(s.Saved)),
	}
	for name, turns := range s.Saved {
		out.Saved[name] = cloneTurns(turns)
	}
	return out
}

// SnapshotNames returns the saved snapshot names in ascending order.
func (s *Session) SnapshotNames() []string {
	names := make([]string, 0, len(s.Saved))
	for name := range s.Saved {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// lastN returns a copy of the final n turns.
func lastN(turns []Turn, n int) []Turn {
	if n < 0 {
		n = 0
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return cloneTurns(turns)
}
