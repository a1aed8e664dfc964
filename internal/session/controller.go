package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/DouaaHasan/placesharer-cli/internal/api"
	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

// ErrEmptyMessage is returned by BeginSend before any network call
// when the message text is blank.
var ErrEmptyMessage = errors.New("message text cannot be empty")

// ErrNoActiveConversation is returned by BeginSend when no
// conversation is open.
var ErrNoActiveConversation = errors.New("no active conversation")

// Transport is the slice of the backend API the controller needs.
// *api.Client satisfies it.
type Transport interface {
	ListCorresponders(ctx context.Context) ([]models.Corresponder, error)
	FetchThread(ctx context.Context, corresponderID string) ([]models.Message, error)
	SendMessage(ctx context.Context, corresponderID, text string) (string, error)
	DeleteCorresponder(ctx context.Context, corresponderID string) error
}

// DraftStore persists unsent composer text per corresponder. The
// controller only ever deletes drafts (when a conversation is
// deleted); loading and saving belong to the composer.
type DraftStore interface {
	Delete(corresponderID string) error
}

// Controller orchestrates the messaging session: loading contacts,
// switching the open conversation, optimistic sends, and thread
// deletion. It is the only writer of the Store.
//
// Operations with a network round-trip come in two halves: a Begin
// step that mutates the store synchronously (so the screen can react
// before any byte hits the wire) and a Finish step that blocks on the
// transport and applies the result against the state current at that
// moment. A result arriving late for a conversation the user has left
// is discarded, never applied.
type Controller struct {
	transport Transport
	store     *Store
	drafts    DraftStore
	log       zerolog.Logger

	mu    sync.Mutex
	phase models.Phase
}

func NewController(transport Transport, store *Store, drafts DraftStore, log zerolog.Logger) *Controller {
	return &Controller{
		transport: transport,
		store:     store,
		drafts:    drafts,
		log:       log.With().Str("component", "session").Logger(),
	}
}

func (c *Controller) Phase() models.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) setPhase(p models.Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// settle drops the controller back to the phase implied by the store:
// a conversation open means active, otherwise idle.
func (c *Controller) settle() {
	if c.store.ActiveID() != "" {
		c.setPhase(models.PhaseConversationActive)
	} else {
		c.setPhase(models.PhaseIdle)
	}
}

func (c *Controller) Snapshot() Snapshot {
	return c.store.Snapshot()
}

// Start loads the contact list and, when another screen handed over a
// "texted user" hint, opens that conversation right away. A hint that
// does not match any contact is ignored.
func (c *Controller) Start(ctx context.Context, openWith string) error {
	if err := c.RefreshContacts(ctx); err != nil {
		return err
	}
	if openWith == "" {
		return nil
	}

	snap := c.store.Snapshot()
	known := lo.SomeBy(snap.Contacts, func(cc models.Corresponder) bool {
		return cc.ID == openWith
	})
	if !known {
		c.log.Warn().Str("corresponder", openWith).Msg("hinted corresponder not in contact list")
		return nil
	}
	return c.OpenConversation(ctx, openWith)
}

// RefreshContacts replaces the contact list with the backend's current
// view of who the user has message history with.
func (c *Controller) RefreshContacts(ctx context.Context) error {
	c.setPhase(models.PhaseLoadingContacts)
	contacts, err := c.transport.ListCorresponders(ctx)
	if err != nil {
		c.settle()
		return err
	}
	c.store.SetContacts(contacts)
	c.settle()
	c.log.Debug().Int("count", len(contacts)).Msg("contacts refreshed")
	return nil
}

// BeginOpen makes a corresponder active and empties the thread, before
// any network traffic.
func (c *Controller) BeginOpen(corresponderID string) {
	c.store.SelectConversation(corresponderID)
	c.setPhase(models.PhaseConversationActive)
}

// FinishOpen fetches the thread for a conversation opened with
// BeginOpen. If the user opened another conversation in the meantime,
// the result no longer matches the active id and is dropped; the
// threads of two conversations can never mix.
func (c *Controller) FinishOpen(ctx context.Context, corresponderID string) error {
	thread, err := c.transport.FetchThread(ctx, corresponderID)
	if err != nil {
		if c.store.ActiveID() != corresponderID {
			// The user already moved on; their new conversation owns
			// the screen and this failure concerns nobody.
			return nil
		}
		return err
	}

	if !c.store.SetThreadFor(corresponderID, thread) {
		c.log.Debug().Str("corresponder", corresponderID).Msg("discarded stale thread fetch")
	}
	return nil
}

// OpenConversation is BeginOpen plus FinishOpen in one blocking call.
func (c *Controller) OpenConversation(ctx context.Context, corresponderID string) error {
	c.BeginOpen(corresponderID)
	return c.FinishOpen(ctx, corresponderID)
}

// SendToken identifies one in-flight send between BeginSend and
// FinishSend.
type SendToken struct {
	CorresponderID string
	LocalID        string
	Text           string
}

// BeginSend validates the text and appends it to the thread right away
// with a placeholder id, so the message is on screen before the
// network round-trip starts.
func (c *Controller) BeginSend(text string) (SendToken, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendToken{}, ErrEmptyMessage
	}
	corresponderID := c.store.ActiveID()
	if corresponderID == "" {
		return SendToken{}, ErrNoActiveConversation
	}

	localID := "pending-" + uuid.NewString()
	c.store.AppendOptimistic(models.Message{
		ID:      localID,
		Text:    text,
		IsSent:  true,
		Pending: true,
	})
	c.setPhase(models.PhaseSending)
	return SendToken{CorresponderID: corresponderID, LocalID: localID, Text: text}, nil
}

// FinishSend runs the send round-trip for a message appended by
// BeginSend. On success the whole thread is re-fetched so ordering and
// ids come from the backend (this also picks up anything the
// corresponder sent in the meantime). On failure the optimistic entry
// stays, marked as failed; nothing is retried or rolled back
// automatically.
func (c *Controller) FinishSend(ctx context.Context, tok SendToken) error {
	assignedID, err := c.transport.SendMessage(ctx, tok.CorresponderID, tok.Text)
	if err != nil {
		c.store.MarkFailed(tok.LocalID)
		c.settle()
		return err
	}

	thread, err := c.transport.FetchThread(ctx, tok.CorresponderID)
	if err != nil {
		// The message went through, only the re-sync failed. Keep the
		// optimistic entry, now carrying its real id, and surface the
		// fetch error.
		c.store.ConfirmMessage(tok.LocalID, assignedID)
		c.settle()
		return err
	}
	if !c.store.SetThreadFor(tok.CorresponderID, thread) {
		c.log.Debug().Str("corresponder", tok.CorresponderID).Msg("discarded post-send thread fetch")
	}
	c.settle()
	return nil
}

// Send is BeginSend plus FinishSend in one blocking call.
func (c *Controller) Send(ctx context.Context, text string) error {
	tok, err := c.BeginSend(text)
	if err != nil {
		return err
	}
	return c.FinishSend(ctx, tok)
}

// DeleteConversation removes a corresponder and their whole thread.
// A backend 404 means someone got there first and counts as success.
// After removal the contact list is re-fetched so it matches the
// backend's notion of who still has messages; the draft for the
// deleted conversation goes with it.
func (c *Controller) DeleteConversation(ctx context.Context, corresponderID string) error {
	c.setPhase(models.PhaseDeleting)

	if err := c.transport.DeleteCorresponder(ctx, corresponderID); err != nil {
		if !api.IsNotFound(err) {
			c.settle()
			return err
		}
		c.log.Debug().Str("corresponder", corresponderID).Msg("corresponder already deleted")
	}

	c.store.RemoveContact(corresponderID)
	if c.drafts != nil {
		if err := c.drafts.Delete(corresponderID); err != nil {
			c.log.Warn().Err(err).Str("corresponder", corresponderID).Msg("failed to delete draft")
		}
	}
	return c.RefreshContacts(ctx)
}

// Back returns focus to the contact list without closing the open
// conversation.
func (c *Controller) Back() {
	c.store.Back()
}
