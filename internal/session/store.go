package session

import (
	"sync"

	"github.com/samber/lo"

	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

// Store is the single source of truth for the messaging screen: the
// contact list, the currently open conversation, and that
// conversation's thread. Every mutator takes the lock, applies fully,
// and leaves a consistent snapshot behind; the controller is the only
// writer, the UI only reads snapshots.
type Store struct {
	mu       sync.Mutex
	contacts []models.Corresponder
	activeID string
	thread   []models.Message
	pane     models.Pane
	revision uint64
}

func NewStore() *Store {
	return &Store{pane: models.PaneContacts}
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Contacts []models.Corresponder
	ActiveID string
	Thread   []models.Message
	Pane     models.Pane
	Revision uint64
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Contacts: append([]models.Corresponder(nil), s.contacts...),
		ActiveID: s.activeID,
		Thread:   append([]models.Message(nil), s.thread...),
		Pane:     s.pane,
		Revision: s.revision,
	}
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetContacts replaces the contact list wholesale. If the active
// corresponder vanished from the new list (deleted on another device,
// or by the refresh racing a delete) the active conversation is
// cleared so the screen never points at a contact that isn't there.
func (s *Store) SetContacts(contacts []models.Corresponder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contacts = append([]models.Corresponder(nil), contacts...)
	if s.activeID == "" {
		return
	}
	stillThere := lo.SomeBy(s.contacts, func(c models.Corresponder) bool {
		return c.ID == s.activeID
	})
	if !stillThere {
		s.activeID = ""
		s.thread = nil
		s.pane = models.PaneContacts
	}
}

// SelectConversation makes a corresponder active and empties the
// thread until the fresh fetch lands.
func (s *Store) SelectConversation(corresponderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = corresponderID
	s.thread = nil
	s.pane = models.PaneThread
}

// SetThreadFor installs a fetched thread, but only while its
// corresponder is still the active one. A fetch that resolves after
// the user has moved on is discarded and the method reports false.
func (s *Store) SetThreadFor(corresponderID string, thread []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if corresponderID != s.activeID {
		return false
	}
	grew := len(thread) > len(s.thread)
	s.thread = append([]models.Message(nil), thread...)
	if grew {
		s.revision++
	}
	return true
}

// AppendOptimistic puts a locally authored message at the end of the
// thread before the backend has confirmed it.
func (s *Store) AppendOptimistic(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = append(s.thread, msg)
	s.revision++
}

// ConfirmMessage swaps an optimistic message's placeholder id for the
// backend-assigned one and clears its pending flag.
func (s *Store) ConfirmMessage(localID, assignedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.thread {
		if s.thread[i].ID == localID {
			s.thread[i].ID = assignedID
			s.thread[i].Pending = false
			return
		}
	}
}

// MarkFailed flags an optimistic message whose send round-trip failed.
// The message stays in the thread so the user can see what did not go
// through.
func (s *Store) MarkFailed(localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.thread {
		if s.thread[i].ID == localID {
			s.thread[i].Pending = false
			s.thread[i].Failed = true
			return
		}
	}
}

// RemoveMessage drops one message from the thread by id.
func (s *Store) RemoveMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = lo.Filter(s.thread, func(m models.Message, _ int) bool {
		return m.ID != id
	})
}

// RemoveContact drops a corresponder from the contact list. If it was
// the active one the conversation is closed in the same step: active
// id cleared, thread emptied, focus back on the contact list.
func (s *Store) RemoveContact(corresponderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = lo.Filter(s.contacts, func(c models.Corresponder, _ int) bool {
		return c.ID != corresponderID
	})
	if s.activeID == corresponderID {
		s.activeID = ""
		s.thread = nil
		s.pane = models.PaneContacts
	}
}

// Back returns focus to the contact list without closing the
// conversation; reopening it from a wide viewport costs nothing.
func (s *Store) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pane = models.PaneContacts
}
