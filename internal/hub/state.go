package hub

// SubscriptionState tracks what one connection wants to receive. Owned solely
// by that connection's dispatcher; never shared.
type SubscriptionState struct {
	games map[string]struct{}
	all   bool
	limit int
}

// NewSubscriptionState creates an empty state capped at limit game names.
func NewSubscriptionState(limit int) *SubscriptionState {
	if limit <= 0 {
		limit = 100
	}
	return &SubscriptionState{
		games: make(map[string]struct{}),
		limit: limit,
	}
}

// Apply mutates the state according to a parsed control message. Subscribe
// requests beyond the cap are silently truncated, not rejected. While the
// all-flag is set the discrete set is still maintained but has no filtering
// effect.
func (s *SubscriptionState) Apply(msg ControlMessage) {
	switch msg.Type {
	case TypeSubscribe:
		for _, name := range msg.Payload {
			if len(s.games) >= s.limit {
				break
			}
			s.games[name] = struct{}{}
		}
	case TypeUnsubscribe:
		for _, name := range msg.Payload {
			delete(s.games, name)
		}
	case TypeSubscribeAll:
		s.all = true
	case TypeUnsubscribeAll:
		s.all = false
	}
}

// Wants reports whether an event for the named game should be delivered.
func (s *SubscriptionState) Wants(gameName string) bool {
	if s.all {
		return true
	}
	_, ok := s.games[gameName]
	return ok
}

// Count returns the size of the discrete subscription set.
func (s *SubscriptionState) Count() int {
	return len(s.games)
}
