package site

import "sync"

// AuthEvent is one notification on the auth-state stream: either "this
// token now identifies the caller" or "nobody is signed in".
type AuthEvent struct {
	Token   string
	Present bool
}

// AuthState is the ongoing stream of sign-in/sign-out notifications.
// Subscribers receive the current state immediately, then every change,
// in order. The stream never ends and is never restarted.
type AuthState struct {
	mu      sync.Mutex
	current AuthEvent
	subs    map[chan AuthEvent]struct{}
	bufSize int
}

func NewAuthState() *AuthState {
	return &AuthState{
		subs:    make(map[chan AuthEvent]struct{}),
		bufSize: 16,
	}
}

// SignIn publishes a present-identity event carrying token.
func (s *AuthState) SignIn(token string) {
	s.publish(AuthEvent{Token: token, Present: token != ""})
}

// SignOut publishes an absent-identity event.
func (s *AuthState) SignOut() {
	s.publish(AuthEvent{})
}

func (s *AuthState) publish(event AuthEvent) {
	s.mu.Lock()
	s.current = event
	chans := make([]chan AuthEvent, 0, len(s.subs))
	for ch := range s.subs {
		chans = append(chans, ch)
	}
	s.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}

// Current returns the most recently published state.
func (s *AuthState) Current() AuthEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers a new listener. The returned channel first replays
// the current state, then delivers subsequent events. The cancel func
// unregisters the listener; the channel is not closed.
func (s *AuthState) Subscribe() (<-chan AuthEvent, func()) {
	ch := make(chan AuthEvent, s.bufSize)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.current
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}
