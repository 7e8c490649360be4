// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wingedpig/parley/internal/chat"
)

// Saver receives a snapshot after every mutation. Versions increase
// monotonically so a saver can discard snapshots that arrive late.
type Saver interface {
	Save(state State, version uint64)
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSessions overrides the session cap.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSaver registers the persistence sink.
func WithSaver(saver Saver) Option {
	return func(s *Store) { s.saver = saver }
}

// WithSettings sets the initial settings.
func WithSettings(settings Settings) Option {
	return func(s *Store) { s.settings = settings }
}

// Store owns the session list and the active-session pointer. All mutation
// goes through its methods; callers only ever receive copies.
type Store struct {
	mu          sync.Mutex
	sessions    []*Session // insertion order, newest first
	activeID    string
	settings    Settings
	maxSessions int
	now         func() time.Time
	saver       Saver
	version     uint64

	// session id -> thinking step key -> index into Messages
	stepIndex map[string]map[chat.StepKey]int
}

// NewStore creates an empty store. Call Initialize (or Restore) before use.
func NewStore(opts ...Option) *Store {
	s := &Store{
		settings:    DefaultSettings(),
		maxSessions: MaxSessions,
		now:         func() time.Time { return time.Now().UTC() },
		stepIndex:   make(map[string]map[chat.StepKey]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newSessionID() string {
	return "session_" + uuid.New().String()
}

func (s *Store) newSession(t Type, opts Options) *Session {
	now := s.now()
	sess := &Session{
		ID:        opts.ID,
		Type:      t,
		SharedID:  opts.SharedID,
		ParentID:  opts.ParentID,
		SharedBy:  opts.SharedBy,
		Messages:  chat.CloneMessages(opts.Messages),
		CreatedAt: opts.CreatedAt,
		UpdatedAt: now,
	}
	if sess.ID == "" {
		sess.ID = newSessionID()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.Messages == nil {
		sess.Messages = []chat.Message{}
	}
	return sess
}

// Initialize guarantees at least one session and a valid active pointer.
func (s *Store) Initialize() Session {
	s.mu.Lock()
	changed := s.ensureActiveLocked()
	active := s.findLocked(s.activeID).Clone()
	s.mu.Unlock()

	if changed {
		s.changed()
	}
	return active
}

func (s *Store) ensureActiveLocked() bool {
	if len(s.sessions) == 0 {
		sess := s.newSession(TypeOwn, Options{})
		s.sessions = []*Session{sess}
		s.activeID = sess.ID
		return true
	}
	if s.findLocked(s.activeID) == nil {
		s.activeID = s.sessions[0].ID
		return true
	}
	return false
}

func (s *Store) findLocked(id string) *Session {
	if id == "" {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

func (s *Store) findBlankLocked() *Session {
	for _, sess := range s.sessions {
		if sess.IsBlank() {
			return sess
		}
	}
	return nil
}

// insertLocked prepends sess and evicts the least recently active sessions
// (never sess itself) while over the cap. It returns the evicted ids.
func (s *Store) insertLocked(sess *Session) []string {
	s.sessions = append([]*Session{sess}, s.sessions...)

	var evicted []string
	for len(s.sessions) > s.maxSessions {
		oldest := -1
		for i := 1; i < len(s.sessions); i++ {
			if oldest == -1 || !s.sessions[i].LastActivity().After(s.sessions[oldest].LastActivity()) {
				oldest = i
			}
		}
		evicted = append(evicted, s.sessions[oldest].ID)
		s.removeLocked(oldest)
	}
	return evicted
}

func (s *Store) removeLocked(i int) {
	delete(s.stepIndex, s.sessions[i].ID)
	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
}

// changed bumps the version and hands a snapshot to the saver.
func (s *Store) changed() {
	if s.saver == nil {
		return
	}
	s.mu.Lock()
	s.version++
	version := s.version
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.saver.Save(state, version)
}

// CreateSession prepends a new session and makes it active. If the store
// exceeds its cap the least recently active session is evicted.
func (s *Store) CreateSession(t Type, opts Options) Session {
	s.mu.Lock()
	sess := s.newSession(t, opts)
	evicted := s.insertLocked(sess)
	s.activeID = sess.ID
	out := sess.Clone()
	s.mu.Unlock()

	if len(evicted) > 0 {
		log.Printf("session: evicted %d session(s) over the %d cap", len(evicted), s.maxSessions)
	}
	s.changed()
	return out
}

// SwitchSession moves the active pointer. Switching to an unknown id leaves
// the store without an active session.
func (s *Store) SwitchSession(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
	s.changed()
}

// StartNewSession activates an existing blank OWN session, or creates one.
func (s *Store) StartNewSession() Session {
	s.mu.Lock()
	if blank := s.findBlankLocked(); blank != nil {
		s.activeID = blank.ID
		out := blank.Clone()
		s.mu.Unlock()
		s.changed()
		return out
	}
	s.mu.Unlock()

	return s.CreateSession(TypeOwn, Options{})
}

// DeleteSession removes a session and reports whether it was the active one.
// Deleting the active session activates a blank OWN session, creating one if
// none exists. At least one OWN session remains while any sessions remain.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	idx := -1
	for i, sess := range s.sessions {
		if sess.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return false
	}

	wasActive := id == s.activeID
	s.removeLocked(idx)

	if wasActive {
		if blank := s.findBlankLocked(); blank != nil {
			s.activeID = blank.ID
		} else {
			sess := s.newSession(TypeOwn, Options{})
			s.insertLocked(sess)
			s.activeID = sess.ID
		}
	} else if len(s.sessions) > 0 && !s.hasOwnLocked() {
		s.sessions = append(s.sessions, s.newSession(TypeOwn, Options{}))
	}
	s.mu.Unlock()

	s.changed()
	return wasActive
}

func (s *Store) hasOwnLocked() bool {
	for _, sess := range s.sessions {
		if sess.Type == TypeOwn {
			return true
		}
	}
	return false
}

// ForkActiveSession copies a shared active session into a new FORKED session
// and activates it. For any other session it returns the active session and
// false.
func (s *Store) ForkActiveSession() (Session, bool) {
	s.mu.Lock()
	active := s.findLocked(s.activeID)
	if active == nil {
		s.mu.Unlock()
		return Session{}, false
	}
	if !active.Type.IsShared() {
		out := active.Clone()
		s.mu.Unlock()
		return out, false
	}

	parent := active.SharedID
	if parent == "" {
		parent = active.ID
	}
	now := s.now()
	fork := active.Clone()
	fork.ID = newSessionID()
	fork.Type = TypeForked
	fork.ParentID = parent
	fork.SharedID = ""
	fork.SharedBy = ""
	fork.CreatedAt = now
	fork.UpdatedAt = now

	s.insertLocked(&fork)
	s.activeID = fork.ID
	out := fork.Clone()
	s.mu.Unlock()

	s.changed()
	return out, true
}

// LoadSharedConversation activates the session holding conversationID if one
// exists; otherwise it creates a SHARED session with the given messages.
// The boolean is true when a new session was created.
func (s *Store) LoadSharedConversation(conversationID string, msgs []chat.Message, meta SharedMetadata) (Session, bool) {
	s.mu.Lock()
	for _, sess := range s.sessions {
		if sess.SharedID == conversationID {
			s.activeID = sess.ID
			out := sess.Clone()
			s.mu.Unlock()
			s.changed()
			return out, false
		}
	}

	id := conversationID
	if s.findLocked(id) != nil {
		id = newSessionID()
	}
	sess := s.newSession(TypeShared, Options{
		ID:        id,
		SharedID:  conversationID,
		ParentID:  meta.ParentID,
		SharedBy:  meta.SharedBy,
		Messages:  msgs,
		CreatedAt: meta.CreatedAt,
	})
	if !meta.CreatedAt.IsZero() {
		sess.UpdatedAt = meta.CreatedAt
	}
	s.insertLocked(sess)
	s.activeID = sess.ID
	out := sess.Clone()
	s.mu.Unlock()

	s.changed()
	return out, true
}

// ClearOldSessions removes sessions whose last activity is older than days
// and returns how many were removed. At least one session always remains.
func (s *Store) ClearOldSessions(days int) int {
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.Lock()
	kept := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(s.stepIndex, sess.ID)
			continue
		}
		kept = append(kept, sess)
	}
	removed := len(s.sessions) - len(kept)
	s.sessions = kept

	if s.findLocked(s.activeID) == nil || len(s.sessions) == 0 {
		s.ensureActiveLocked()
	}
	s.mu.Unlock()

	if removed > 0 {
		s.changed()
	}
	return removed
}

// ClearAllSessions replaces every session with one blank session.
func (s *Store) ClearAllSessions() Session {
	s.mu.Lock()
	sess := s.newSession(TypeOwn, Options{})
	s.sessions = []*Session{sess}
	s.activeID = sess.ID
	s.stepIndex = make(map[string]map[chat.StepKey]int)
	out := sess.Clone()
	s.mu.Unlock()

	s.changed()
	return out
}

// AddMessage appends msg to the active session. Without an active session it
// logs a warning and returns false.
func (s *Store) AddMessage(msg chat.Message) bool {
	s.mu.Lock()
	active := s.findLocked(s.activeID)
	if active == nil {
		s.mu.Unlock()
		log.Printf("session: cannot add message: no active session")
		return false
	}
	active.Messages = append(active.Messages, msg.Clone())
	if msg.Kind == chat.KindThinkingStep && msg.Data != nil {
		s.indexLocked(active)[msg.Data.Key()] = len(active.Messages) - 1
	}
	active.UpdatedAt = s.now()
	s.mu.Unlock()

	s.changed()
	return true
}

func (s *Store) indexLocked(sess *Session) map[chat.StepKey]int {
	idx, ok := s.stepIndex[sess.ID]
	if ok {
		return idx
	}
	idx = make(map[chat.StepKey]int)
	for i, m := range sess.Messages {
		if m.Kind == chat.KindThinkingStep && m.Data != nil {
			idx[m.Data.Key()] = i
		}
	}
	s.stepIndex[sess.ID] = idx
	return idx
}

// UpsertThinkingStep records a finalized thinking step in the active session.
// A step with the same (step number, iteration) is merged in place, otherwise
// a new THINKING_STEP message is appended. The resulting message is returned
// along with whether it was appended.
func (s *Store) UpsertThinkingStep(step chat.ThinkingData) (chat.Message, bool, bool) {
	s.mu.Lock()
	active := s.findLocked(s.activeID)
	if active == nil {
		s.mu.Unlock()
		log.Printf("session: cannot record thinking step %d: no active session", step.StepNumber)
		return chat.Message{}, false, false
	}

	idx := s.indexLocked(active)
	key := step.Key()
	var out chat.Message
	appended := false
	if i, ok := idx[key]; ok && i < len(active.Messages) && active.Messages[i].Data != nil {
		updated := active.Messages[i].Clone()
		merged := updated.Data.Merge(step)
		updated.Data = &merged
		active.Messages[i] = updated
		out = updated.Clone()
	} else {
		msg := chat.NewThinkingMessage(step)
		active.Messages = append(active.Messages, msg)
		idx[key] = len(active.Messages) - 1
		out = msg.Clone()
		appended = true
	}
	active.UpdatedAt = s.now()
	s.mu.Unlock()

	s.changed()
	return out, appended, true
}

// ClearMessages empties the active session.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	active := s.findLocked(s.activeID)
	if active == nil {
		s.mu.Unlock()
		log.Printf("session: cannot clear messages: no active session")
		return
	}
	active.Messages = []chat.Message{}
	active.UpdatedAt = s.now()
	delete(s.stepIndex, active.ID)
	s.mu.Unlock()

	s.changed()
}

// UpdateMetadata applies a partial update to a session.
func (s *Store) UpdateMetadata(id string, md Metadata) bool {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	if md.Type != nil {
		sess.Type = *md.Type
	}
	if md.SharedID != nil {
		sess.SharedID = *md.SharedID
	}
	if md.ParentID != nil {
		sess.ParentID = *md.ParentID
	}
	if md.ScrollPosition != nil {
		p := *md.ScrollPosition
		sess.ScrollPosition = &p
	}
	sess.UpdatedAt = s.now()
	s.mu.Unlock()

	s.changed()
	return true
}

// SetScrollPosition records the saved viewport offset of a session.
func (s *Store) SetScrollPosition(id string, offset float64) bool {
	return s.UpdateMetadata(id, Metadata{ScrollPosition: &offset})
}

// MarkShared records that a session has been published under sharedID.
func (s *Store) MarkShared(id, sharedID string) bool {
	t := TypeSharedByMe
	return s.UpdateMetadata(id, Metadata{Type: &t, SharedID: &sharedID})
}

// ActiveSession returns a copy of the active session.
func (s *Store) ActiveSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.findLocked(s.activeID)
	if active == nil {
		return Session{}, false
	}
	return active.Clone(), true
}

// ActiveID returns the active session id, which may not exist.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Session returns a copy of the session with the given id.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(id)
	if sess == nil {
		return Session{}, false
	}
	return sess.Clone(), true
}

// Sessions returns copies of all sessions, most recently active first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity().After(out[j].LastActivity())
	})
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to the settings.
func (s *Store) UpdateSettings(fn func(*Settings)) Settings {
	s.mu.Lock()
	fn(&s.settings)
	out := s.settings
	s.mu.Unlock()

	s.changed()
	return out
}

// Stats summarizes the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Sessions: len(s.sessions)}
	for _, sess := range s.sessions {
		st.Messages += len(sess.Messages)
		last := sess.LastActivity()
		if st.Oldest.IsZero() || last.Before(st.Oldest) {
			st.Oldest = last
		}
		if last.After(st.Newest) {
			st.Newest = last
		}
	}
	return st
}

// Snapshot returns the persisted subset of the store.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	state := State{
		Sessions:        make([]Session, len(s.sessions)),
		ActiveSessionID: s.activeID,
		Settings:        s.settings,
	}
	for i, sess := range s.sessions {
		state.Sessions[i] = sess.Clone()
	}
	return state
}

// Restore replaces the store contents with a persisted state. The current
// active session is kept if it still exists in state. Restore does not
// trigger a save.
func (s *Store) Restore(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevActive := s.activeID
	s.sessions = make([]*Session, 0, len(state.Sessions))
	seen := make(map[string]bool, len(state.Sessions))
	for _, sess := range state.Sessions {
		if sess.ID == "" || seen[sess.ID] {
			continue
		}
		seen[sess.ID] = true
		c := sess.Clone()
		if c.Messages == nil {
			c.Messages = []chat.Message{}
		}
		if c.Type == "" {
			c.Type = TypeOwn
		}
		s.sessions = append(s.sessions, &c)
	}
	if len(s.sessions) > s.maxSessions {
		s.sessions = s.sessions[:s.maxSessions]
	}
	s.settings = state.Settings
	s.stepIndex = make(map[string]map[chat.StepKey]int)

	switch {
	case prevActive != "" && s.findLocked(prevActive) != nil:
		s.activeID = prevActive
	default:
		s.activeID = state.ActiveSessionID
	}
	s.ensureActiveLocked()
}
