package conversation

// MinHistory is the smallest usable history: the system Turn plus one message.
const MinHistory = 2

// State is the ordered history of one user. The first Turn is always the system Turn.
type State struct {
	turns []Turn
}

// Turns returns a copy of the history, safe to hand to other goroutines.
func (s *State) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

// Len returns the number of stored Turns.
func (s *State) Len() int {
	return len(s.turns)
}

func (s *State) append(t Turn, max int) {
	s.turns = append(s.turns, t)
	if len(s.turns) <= max {
		return
	}
	// Keep the system Turn and the most recent max-1 Turns.
	kept := make([]Turn, 0, max)
	kept = append(kept, s.turns[0])
	kept = append(kept, s.turns[len(s.turns)-(max-1):]...)
	s.turns = kept
}

// Store owns every user's State. It is not safe for concurrent use: all calls
// must come from the control loop.
type Store struct {
	system     Turn
	maxHistory int
	states     map[string]*State
}

// NewStore creates a store seeding every new State with systemPrompt and holding
// at most maxHistory Turns per user.
func NewStore(systemPrompt string, maxHistory int) *Store {
	if maxHistory < MinHistory {
		maxHistory = MinHistory
	}
	return &Store{
		system:     SystemTurn(systemPrompt),
		maxHistory: maxHistory,
		states:     make(map[string]*State),
	}
}

// System returns the system Turn every State starts with.
func (s *Store) System() Turn {
	return s.system
}

// MaxHistory returns the per-user Turn limit.
func (s *Store) MaxHistory() int {
	return s.maxHistory
}

// GetOrCreate returns the user's State, creating it with the system Turn if absent.
func (s *Store) GetOrCreate(userID string) *State {
	st, ok := s.states[userID]
	if !ok {
		st = &State{turns: []Turn{s.system}}
		s.states[userID] = st
	}
	return st
}

// AppendUser appends a user Turn and prunes.
func (s *Store) AppendUser(userID, text string) {
	s.GetOrCreate(userID).append(UserTurn(text), s.maxHistory)
}

// AppendAssistant appends an assistant Turn and prunes.
func (s *Store) AppendAssistant(userID string, t Turn) {
	t.Role = RoleAssistant
	s.GetOrCreate(userID).append(t, s.maxHistory)
}

// History returns a copy of the user's Turns, creating the State if absent.
func (s *Store) History(userID string) []Turn {
	return s.GetOrCreate(userID).Turns()
}

// Users returns the number of users with a State.
func (s *Store) Users() int {
	return len(s.states)
}
