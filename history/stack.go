package history

import (
	"net/url"
)

// Entry is one slot of a Stack.
type Entry struct {
	URL   *url.URL
	State State
}

// Stack is a headless Platform: a back/forward list with a cursor.
// Navigating back or forward fires the popstate listener.
type Stack struct {
	entries []Entry
	pos     int
	onPop   func(state *State, u *url.URL)
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{pos: -1}
}

// OnPopState sets the popstate listener.
func (s *Stack) OnPopState(fn func(state *State, u *url.URL)) { s.onPop = fn }

// PushState drops forward entries and appends a new current entry.
func (s *Stack) PushState(state State, u *url.URL) {
	s.entries = append(s.entries[:s.pos+1], Entry{URL: u, State: state})
	s.pos = len(s.entries) - 1
}

// ReplaceState overwrites the current entry.
func (s *Stack) ReplaceState(state State, u *url.URL) {
	if s.pos < 0 {
		s.PushState(state, u)
		return
	}
	s.entries[s.pos] = Entry{URL: u, State: state}
}

// Back moves one entry back. It reports false at the start of history.
func (s *Stack) Back() bool { return s.Go(-1) }

// Forward moves one entry forward. It reports false at the end of history.
func (s *Stack) Forward() bool { return s.Go(1) }

// Go moves delta entries and fires popstate.
func (s *Stack) Go(delta int) bool {
	next := s.pos + delta
	if delta == 0 || next < 0 || next >= len(s.entries) {
		return false
	}
	s.pos = next
	e := s.entries[next]
	if s.onPop != nil {
		st := e.State
		s.onPop(&st, e.URL)
	}
	return true
}

// Current returns the current entry.
func (s *Stack) Current() (Entry, bool) {
	if s.pos < 0 {
		return Entry{}, false
	}
	return s.entries[s.pos], true
}

// Len returns the number of entries.
func (s *Stack) Len() int { return len(s.entries) }

// CanGoBack reports whether Back would move.
func (s *Stack) CanGoBack() bool { return s.pos > 0 }

// CanGoForward reports whether Forward would move.
func (s *Stack) CanGoForward() bool { return s.pos < len(s.entries)-1 }
