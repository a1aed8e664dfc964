package session

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DouaaHasan/placesharer-cli/internal/api"
	"github.com/DouaaHasan/placesharer-cli/internal/models"
)

type fakeTransport struct {
	listFn   func(ctx context.Context) ([]models.Corresponder, error)
	fetchFn  func(ctx context.Context, corresponderID string) ([]models.Message, error)
	sendFn   func(ctx context.Context, corresponderID, text string) (string, error)
	deleteFn func(ctx context.Context, corresponderID string) error

	sendCalls   int
	deleteCalls int
}

func (f *fakeTransport) ListCorresponders(ctx context.Context) ([]models.Corresponder, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx)
}

func (f *fakeTransport) FetchThread(ctx context.Context, corresponderID string) ([]models.Message, error) {
	if f.fetchFn == nil {
		return nil, nil
	}
	return f.fetchFn(ctx, corresponderID)
}

func (f *fakeTransport) SendMessage(ctx context.Context, corresponderID, text string) (string, error) {
	f.sendCalls++
	if f.sendFn == nil {
		return "", errors.New("unexpected send")
	}
	return f.sendFn(ctx, corresponderID, text)
}

func (f *fakeTransport) DeleteCorresponder(ctx context.Context, corresponderID string) error {
	f.deleteCalls++
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, corresponderID)
}

type fakeDrafts struct {
	deleted []string
}

func (f *fakeDrafts) Delete(corresponderID string) error {
	f.deleted = append(f.deleted, corresponderID)
	return nil
}

func staticContacts(contacts ...models.Corresponder) func(context.Context) ([]models.Corresponder, error) {
	return func(context.Context) ([]models.Corresponder, error) {
		return contacts, nil
	}
}

func newTestController(transport Transport) (*Controller, *Store) {
	store := NewStore()
	return NewController(transport, store, nil, zerolog.Nop()), store
}

// assertActiveInContacts checks the core consistency rule: the active
// conversation, if any, always points at a listed contact.
func assertActiveInContacts(t *testing.T, snap Snapshot) {
	t.Helper()
	if snap.ActiveID == "" {
		return
	}
	assert.True(t, lo.SomeBy(snap.Contacts, func(c models.Corresponder) bool {
		return c.ID == snap.ActiveID
	}), "active corresponder %q missing from contacts", snap.ActiveID)
}

func TestStartLoadsContacts(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
	}
	c, _ := newTestController(transport)

	require.NoError(t, c.Start(context.Background(), ""))

	snap := c.Snapshot()
	require.Len(t, snap.Contacts, 1)
	assert.Empty(t, snap.ActiveID)
	assert.Equal(t, models.PhaseIdle, c.Phase())
	assertActiveInContacts(t, snap)
}

func TestStartOpensHintedConversation(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			require.Equal(t, "u1", id)
			return []models.Message{{ID: "m1", Text: "hey", IsSent: false}}, nil
		},
	}
	c, _ := newTestController(transport)

	require.NoError(t, c.Start(context.Background(), "u1"))

	snap := c.Snapshot()
	assert.Equal(t, "u1", snap.ActiveID)
	require.Len(t, snap.Thread, 1)
	assert.Equal(t, models.PhaseConversationActive, c.Phase())
	assertActiveInContacts(t, snap)
}

func TestStartIgnoresUnknownHint(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
	}
	c, _ := newTestController(transport)

	require.NoError(t, c.Start(context.Background(), "stranger"))

	snap := c.Snapshot()
	assert.Empty(t, snap.ActiveID)
	assertActiveInContacts(t, snap)
}

func TestOpenConversationScenario(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			return []models.Message{{Text: "hey", IsSent: false}}, nil
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	before := c.Snapshot().Revision

	require.NoError(t, c.OpenConversation(context.Background(), "u1"))

	snap := c.Snapshot()
	vm := Project(snap, false)
	assert.Equal(t, "with Ann", vm.Header)
	require.Len(t, vm.Thread, 1)
	assert.False(t, vm.Thread[0].IsSent)
	assert.Equal(t, before+1, snap.Revision)
	assertActiveInContacts(t, snap)
}

// Opening B while A's fetch is still in flight must end with B's
// thread, no matter which response lands first.
func TestOpenConversationRaceKeepsLatest(t *testing.T) {
	threads := map[string][]models.Message{
		"a": {{ID: "a1", Text: "from a"}},
		"b": {{ID: "b1", Text: "from b"}, {ID: "b2", Text: "more b"}},
	}
	transport := &fakeTransport{
		listFn: staticContacts(
			models.Corresponder{ID: "a", Name: "Ann"},
			models.Corresponder{ID: "b", Name: "Bob"},
		),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			return threads[id], nil
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))

	// A's response arrives after B's: begin both opens, resolve B,
	// then let A's stale result land.
	c.BeginOpen("a")
	c.BeginOpen("b")
	require.NoError(t, c.FinishOpen(context.Background(), "b"))
	require.NoError(t, c.FinishOpen(context.Background(), "a"))

	snap := c.Snapshot()
	assert.Equal(t, "b", snap.ActiveID)
	require.Len(t, snap.Thread, 2)
	assert.Equal(t, "from b", snap.Thread[0].Text)
	assertActiveInContacts(t, snap)

	// B's response arrives after A's late one in the other order too.
	c.BeginOpen("a")
	c.BeginOpen("b")
	require.NoError(t, c.FinishOpen(context.Background(), "a"))
	require.NoError(t, c.FinishOpen(context.Background(), "b"))

	snap = c.Snapshot()
	assert.Equal(t, "b", snap.ActiveID)
	require.Len(t, snap.Thread, 2)
	assert.Equal(t, "more b", snap.Thread[1].Text)
}

func TestOpenConversationFetchErrorAfterSwitchIsSwallowed(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(
			models.Corresponder{ID: "a", Name: "Ann"},
			models.Corresponder{ID: "b", Name: "Bob"},
		),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			if id == "a" {
				return nil, &api.Error{Status: http.StatusInternalServerError, Message: "boom"}
			}
			return nil, nil
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))

	c.BeginOpen("a")
	c.BeginOpen("b")
	require.NoError(t, c.FinishOpen(context.Background(), "b"))

	// A's failure resolves after the user moved to B: nobody cares.
	assert.NoError(t, c.FinishOpen(context.Background(), "a"))
	assert.Equal(t, "b", c.Snapshot().ActiveID)
}

func TestBeginSendIsImmediatelyVisible(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	c.BeginOpen("u1")
	require.NoError(t, c.FinishOpen(context.Background(), "u1"))

	tok, err := c.BeginSend("hi")
	require.NoError(t, err)

	// Before any network round-trip resolves the message is on screen.
	snap := c.Snapshot()
	require.Len(t, snap.Thread, 1)
	assert.True(t, snap.Thread[0].IsSent)
	assert.True(t, snap.Thread[0].Pending)
	assert.Equal(t, "hi", snap.Thread[0].Text)
	assert.Equal(t, tok.LocalID, snap.Thread[0].ID)
	assert.Equal(t, models.PhaseSending, c.Phase())
	assert.Zero(t, transport.sendCalls)
}

func TestSendReconcilesWithoutDuplicate(t *testing.T) {
	authoritative := []models.Message{
		{ID: "m1", Text: "hey", IsSent: false},
		{ID: "m9", Text: "yo", IsSent: true},
	}
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			return authoritative, nil
		},
		sendFn: func(_ context.Context, id, text string) (string, error) {
			return "m9", nil
		},
	}
	c, store := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	c.BeginOpen("u1")
	store.SetThreadFor("u1", []models.Message{{ID: "m1", Text: "hey", IsSent: false}})

	require.NoError(t, c.Send(context.Background(), "yo"))

	snap := c.Snapshot()
	require.Len(t, snap.Thread, 2)
	assert.Equal(t, "m9", snap.Thread[1].ID)
	assert.True(t, snap.Thread[1].IsSent)
	assert.False(t, snap.Thread[1].Pending)
	assert.Equal(t, 1, transport.sendCalls)
	assert.Equal(t, models.PhaseConversationActive, c.Phase())
}

func TestSendRejectsEmptyText(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	c.BeginOpen("u1")

	_, err := c.BeginSend("   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, transport.sendCalls)
	assert.Empty(t, c.Snapshot().Thread)
}

func TestSendRequiresActiveConversation(t *testing.T) {
	c, _ := newTestController(&fakeTransport{})
	_, err := c.BeginSend("hi")
	assert.ErrorIs(t, err, ErrNoActiveConversation)
}

func TestSendFailureKeepsMessageMarkedFailed(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		sendFn: func(_ context.Context, id, text string) (string, error) {
			return "", &api.Error{Status: http.StatusInternalServerError, Message: "boom"}
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	c.BeginOpen("u1")
	require.NoError(t, c.FinishOpen(context.Background(), "u1"))

	err := c.Send(context.Background(), "yo")
	require.Error(t, err)

	snap := c.Snapshot()
	require.Len(t, snap.Thread, 1)
	assert.True(t, snap.Thread[0].Failed)
	assert.False(t, snap.Thread[0].Pending)
	assert.Equal(t, "yo", snap.Thread[0].Text)
	// One attempt only: failed sends are never retried automatically.
	assert.Equal(t, 1, transport.sendCalls)
	assert.Equal(t, models.PhaseConversationActive, c.Phase())
}

func TestSendRefetchFailureConfirmsInPlace(t *testing.T) {
	fetches := 0
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		fetchFn: func(_ context.Context, id string) ([]models.Message, error) {
			fetches++
			if fetches == 1 {
				return nil, nil
			}
			return nil, &api.Error{Status: http.StatusBadGateway, Message: "flaky"}
		},
		sendFn: func(_ context.Context, id, text string) (string, error) {
			return "m9", nil
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	require.NoError(t, c.OpenConversation(context.Background(), "u1"))

	err := c.Send(context.Background(), "yo")
	require.Error(t, err)

	snap := c.Snapshot()
	require.Len(t, snap.Thread, 1)
	assert.Equal(t, "m9", snap.Thread[0].ID)
	assert.False(t, snap.Thread[0].Pending)
	assert.False(t, snap.Thread[0].Failed)
}

func TestDeleteActiveConversation(t *testing.T) {
	remaining := []models.Corresponder{{ID: "u2", Name: "Bob"}}
	transport := &fakeTransport{
		listFn: func(context.Context) ([]models.Corresponder, error) {
			return remaining, nil
		},
	}
	store := NewStore()
	draftStore := &fakeDrafts{}
	c := NewController(transport, store, draftStore, zerolog.Nop())

	store.SetContacts([]models.Corresponder{{ID: "u1", Name: "Ann"}, {ID: "u2", Name: "Bob"}})
	c.BeginOpen("u1")
	store.SetThreadFor("u1", []models.Message{{ID: "m1", Text: "hey"}})

	require.NoError(t, c.DeleteConversation(context.Background(), "u1"))

	snap := c.Snapshot()
	assert.False(t, lo.SomeBy(snap.Contacts, func(cc models.Corresponder) bool { return cc.ID == "u1" }))
	assert.Empty(t, snap.ActiveID)
	assert.Empty(t, snap.Thread)
	assert.Equal(t, []string{"u1"}, draftStore.deleted)
	assert.Equal(t, models.PhaseIdle, c.Phase())
	assertActiveInContacts(t, snap)
}

func TestDeleteTwiceEndsInSameState(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u2", Name: "Bob"}),
		deleteFn: func(_ context.Context, id string) error {
			return nil
		},
	}
	c, store := newTestController(transport)
	store.SetContacts([]models.Corresponder{{ID: "u1", Name: "Ann"}, {ID: "u2", Name: "Bob"}})

	require.NoError(t, c.DeleteConversation(context.Background(), "u1"))
	after := c.Snapshot().Contacts

	// The second attempt hits an already-deleted id; the backend says
	// 404 and the controller treats it as done.
	transport.deleteFn = func(_ context.Context, id string) error {
		return &api.Error{Status: http.StatusNotFound, Message: "corresponder not found"}
	}
	require.NoError(t, c.DeleteConversation(context.Background(), "u1"))

	assert.Equal(t, after, c.Snapshot().Contacts)
	assert.Equal(t, 2, transport.deleteCalls)
}

func TestDeleteFailureKeepsContact(t *testing.T) {
	transport := &fakeTransport{
		listFn: staticContacts(models.Corresponder{ID: "u1", Name: "Ann"}),
		deleteFn: func(_ context.Context, id string) error {
			return &api.Error{Status: http.StatusInternalServerError, Message: "boom"}
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))

	err := c.DeleteConversation(context.Background(), "u1")
	require.Error(t, err)

	snap := c.Snapshot()
	require.Len(t, snap.Contacts, 1)
	assert.Equal(t, "u1", snap.Contacts[0].ID)
	assertActiveInContacts(t, snap)
}

func TestRefreshHealsVanishedActiveConversation(t *testing.T) {
	lists := [][]models.Corresponder{
		{{ID: "u1", Name: "Ann"}},
		{},
	}
	transport := &fakeTransport{
		listFn: func(context.Context) ([]models.Corresponder, error) {
			next := lists[0]
			if len(lists) > 1 {
				lists = lists[1:]
			}
			return next, nil
		},
	}
	c, _ := newTestController(transport)
	require.NoError(t, c.RefreshContacts(context.Background()))
	c.BeginOpen("u1")
	require.NoError(t, c.FinishOpen(context.Background(), "u1"))

	// The backend no longer lists u1 (deleted elsewhere); the refresh
	// must not leave the screen pointing at a ghost.
	require.NoError(t, c.RefreshContacts(context.Background()))

	snap := c.Snapshot()
	assert.Empty(t, snap.ActiveID)
	assert.Empty(t, snap.Thread)
	assert.Equal(t, models.PhaseIdle, c.Phase())
	assertActiveInContacts(t, snap)
}

func TestRefreshContactsError(t *testing.T) {
	transport := &fakeTransport{
		listFn: func(context.Context) ([]models.Corresponder, error) {
			return nil, &api.Error{Status: http.StatusUnauthorized, Message: "bad token"}
		},
	}
	c, _ := newTestController(transport)

	err := c.RefreshContacts(context.Background())
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, models.PhaseIdle, c.Phase())
}
