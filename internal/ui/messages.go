package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/DouaaHasan/placesharer-cli/internal/drafts"
	"github.com/DouaaHasan/placesharer-cli/internal/models"
	"github.com/DouaaHasan/placesharer-cli/internal/session"
)

// Below this width the contact list and the thread share the screen
// one at a time instead of side by side.
const narrowWidth = 80

const contactsPaneWidth = 32

type contactsLoadedMsg struct {
	err error
}

type threadLoadedMsg struct {
	corresponderID string
	draft          string
	err            error
}

type sentMsg struct {
	err error
}

type deletedMsg struct {
	corresponderID string
	err            error
}

// MessagesModel is the whole messaging screen: the contact list on one
// side, the active conversation's thread plus composer on the other.
// All state lives in the session controller; this model only projects
// it and forwards key presses.
type MessagesModel struct {
	controller *session.Controller
	drafts     *drafts.Store
	openWith   string

	list     list.Model
	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	vm           session.ViewModel
	pane         models.Pane
	lastRevision uint64

	loading  bool
	sending  bool
	deleting bool
	err      error

	windowWidth  int
	windowHeight int
}

// NewMessagesModel builds the messaging screen. openWith is the
// corresponder another screen asked to start with ("" for none).
func NewMessagesModel(controller *session.Controller, draftStore *drafts.Store, openWith string) MessagesModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.CharLimit = 1000
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	return MessagesModel{
		controller:   controller,
		drafts:       draftStore,
		openWith:     openWith,
		list:         newContactsList(),
		viewport:     vp,
		textarea:     ta,
		spinner:      s,
		vm:           session.Project(session.Snapshot{}, true),
		loading:      true,
		windowWidth:  80,
		windowHeight: 30,
	}
}

func (m MessagesModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startCmd())
}

func (m MessagesModel) startCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.controller.Start(context.Background(), m.openWith)
		return contactsLoadedMsg{err: err}
	}
}

func (m MessagesModel) refreshContactsCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.controller.RefreshContacts(context.Background())
		return contactsLoadedMsg{err: err}
	}
}

// fetchThreadCmd finishes an open (or refreshes the current thread)
// and brings the stored draft along.
func (m MessagesModel) fetchThreadCmd(corresponderID string) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.FinishOpen(context.Background(), corresponderID)
		draft := ""
		if m.drafts != nil {
			draft, _ = m.drafts.Load(corresponderID)
		}
		return threadLoadedMsg{corresponderID: corresponderID, draft: draft, err: err}
	}
}

func (m MessagesModel) finishSendCmd(tok session.SendToken) tea.Cmd {
	return func() tea.Msg {
		return sentMsg{err: m.controller.FinishSend(context.Background(), tok)}
	}
}

func (m MessagesModel) deleteCmd(corresponderID string) tea.Cmd {
	return func() tea.Msg {
		err := m.controller.DeleteConversation(context.Background(), corresponderID)
		return deletedMsg{corresponderID: corresponderID, err: err}
	}
}

// sync re-projects the session state into the view model, rebuilds the
// derived widgets, and jumps to the newest message when the thread
// grew.
func (m *MessagesModel) sync() {
	snap := m.controller.Snapshot()
	m.pane = snap.Pane
	m.vm = session.Project(snap, m.windowWidth < narrowWidth)

	items := make([]list.Item, len(m.vm.Contacts))
	for i, c := range m.vm.Contacts {
		items[i] = contactItem{contact: c, active: c.ID == m.vm.ActiveID}
	}
	m.list.SetItems(items)

	m.updateViewportContent()
	if m.vm.Revision > m.lastRevision {
		m.lastRevision = m.vm.Revision
		m.viewport.GotoBottom()
	}
}

// saveDraft stashes whatever is in the composer for the currently
// active conversation.
func (m *MessagesModel) saveDraft() {
	if m.drafts == nil || m.vm.ActiveID == "" {
		return
	}
	// Draft persistence is best effort; losing one is not worth
	// interrupting the session over.
	_ = m.drafts.Save(m.vm.ActiveID, strings.TrimSpace(m.textarea.Value()))
}

func (m *MessagesModel) layout() {
	threadWidth := m.windowWidth - 4
	if m.windowWidth >= narrowWidth {
		threadWidth = m.windowWidth - contactsPaneWidth - 6
	}

	headerHeight := 4
	composerHeight := 5
	m.list.SetSize(contactsPaneWidth, m.windowHeight-4)
	m.viewport.Width = threadWidth
	m.viewport.Height = m.windowHeight - headerHeight - composerHeight - 2
	m.textarea.SetWidth(threadWidth)
}

func (m MessagesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowWidth = msg.Width
		m.windowHeight = msg.Height
		m.layout()
		m.sync()
		return m, nil

	case contactsLoadedMsg:
		m.loading = false
		m.deleting = false
		m.err = msg.err
		m.sync()
		return m, nil

	case threadLoadedMsg:
		m.loading = false
		if msg.err != nil && msg.corresponderID == m.controller.Snapshot().ActiveID {
			m.err = msg.err
		}
		m.sync()
		if msg.corresponderID == m.vm.ActiveID && msg.draft != "" && strings.TrimSpace(m.textarea.Value()) == "" {
			m.textarea.SetValue(msg.draft)
		}
		return m, nil

	case sentMsg:
		m.sending = false
		m.err = msg.err
		m.sync()
		return m, nil

	case deletedMsg:
		m.deleting = false
		m.err = msg.err
		m.sync()
		return m, nil

	case spinner.TickMsg:
		if m.loading || m.sending || m.deleting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m MessagesModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.saveDraft()
		return m, tea.Quit
	}

	// An error banner is dismissed with esc before esc means anything
	// else.
	if m.err != nil && msg.String() == "esc" {
		m.err = nil
		return m, nil
	}

	if m.pane == models.PaneThread {
		return m.handleThreadKey(msg)
	}
	return m.handleContactsKey(msg)
}

func (m MessagesModel) handleContactsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.saveDraft()
		return m, tea.Quit

	case "r":
		if !m.loading {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.refreshContactsCmd())
		}
		return m, nil

	case "enter":
		item, ok := m.list.SelectedItem().(contactItem)
		if !ok || m.loading || m.deleting {
			return m, nil
		}
		// Park the draft of the conversation being left before the
		// composer is reused.
		m.saveDraft()
		m.textarea.Reset()

		m.controller.BeginOpen(item.contact.ID)
		m.loading = true
		m.sync()
		m.layout()
		m.textarea.Focus()
		return m, tea.Batch(m.spinner.Tick, m.fetchThreadCmd(item.contact.ID), textarea.Blink)

	case "d", "x":
		item, ok := m.list.SelectedItem().(contactItem)
		if !ok || m.deleting {
			return m, nil
		}
		m.deleting = true
		if item.contact.ID == m.vm.ActiveID {
			// The conversation is going away; so is its half-written
			// message.
			m.textarea.Reset()
		}
		return m, tea.Batch(m.spinner.Tick, m.deleteCmd(item.contact.ID))

	default:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
}

func (m MessagesModel) handleThreadKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.saveDraft()
		m.textarea.Blur()
		m.controller.Back()
		m.sync()
		return m, nil

	case "ctrl+s":
		if m.sending {
			return m, nil
		}
		tok, err := m.controller.BeginSend(m.textarea.Value())
		if err != nil {
			m.err = err
			return m, nil
		}
		m.sending = true
		m.textarea.Reset()
		m.sync()
		return m, tea.Batch(m.spinner.Tick, m.finishSendCmd(tok))

	case "ctrl+r":
		if !m.loading && m.vm.ActiveID != "" {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.fetchThreadCmd(m.vm.ActiveID))
		}
		return m, nil

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	default:
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		return m, cmd
	}
}

func (m *MessagesModel) updateViewportContent() {
	if len(m.vm.Thread) == 0 {
		m.viewport.SetContent("")
		return
	}

	wrapWidth := m.viewport.Width
	if wrapWidth <= 0 {
		wrapWidth = 80
	}

	otherName := "Them"
	if m.vm.Header != "" {
		otherName = strings.TrimPrefix(m.vm.Header, "with ")
	}

	var content strings.Builder
	for i, message := range m.vm.Thread {
		if i > 0 {
			content.WriteString("\n")
		}

		if message.IsSent {
			header := "You"
			if message.Pending {
				header = "You • sending..."
			}
			content.WriteString(lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth).Render(messageHeaderStyle.Render(header)) + "\n")

			wrappedText := wordwrap.String(message.Text, wrapWidth-10)
			styledText := messageFromMeStyle.Render(wrappedText)
			content.WriteString(lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth).Render(styledText) + "\n")

			if message.Failed {
				marker := failedStyle.Render("✗ not delivered")
				content.WriteString(lipgloss.NewStyle().Align(lipgloss.Right).Width(wrapWidth).Render(marker) + "\n")
			}
		} else {
			content.WriteString(messageHeaderStyle.Render(otherName) + "\n")
			wrappedText := wordwrap.String(message.Text, wrapWidth-10)
			content.WriteString(messageFromOtherStyle.Render(wrappedText) + "\n")
		}
	}

	m.viewport.SetContent(content.String())
}

func (m MessagesModel) contactsView() string {
	var s strings.Builder
	s.WriteString(m.list.View())
	s.WriteString("\n")
	if m.vm.NoContacts && !m.loading {
		s.WriteString(normalStyle.Render("  No conversations yet.") + "\n")
		s.WriteString(helpStyle.Render("  Text someone from the web app to start one!") + "\n")
	}
	return s.String()
}

func (m MessagesModel) threadView() string {
	header := "Messages"
	if m.vm.Header != "" {
		header = "Messages " + m.vm.Header
	}
	s := titleStyle.Render(header) + "\n"

	switch {
	case m.vm.ActiveID == "":
		s += helpStyle.Render("  Pick a conversation from the list.") + "\n"
	case m.loading && m.vm.EmptyThread:
		s += fmt.Sprintf("  %s Loading messages...\n", m.spinner.View())
	case m.vm.EmptyThread:
		s += normalStyle.Render("  Start a message!") + "\n"
	default:
		s += m.viewport.View() + "\n"
	}

	if m.sending {
		s += fmt.Sprintf("  %s Sending message...\n", m.spinner.View())
	}

	if m.vm.ActiveID != "" {
		s += "\n" + inputStyle.Render("New Message:") + "\n"
		s += m.textarea.View() + "\n"
	}
	return s
}

func (m MessagesModel) View() string {
	if m.loading && m.vm.NoContacts && m.vm.ActiveID == "" && m.err == nil {
		return fmt.Sprintf("\n  %s Loading conversations...\n", m.spinner.View())
	}

	var s strings.Builder

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + " " + helpStyle.Render("(esc to dismiss)") + "\n")
	}
	if m.deleting {
		s.WriteString(fmt.Sprintf("  %s Deleting conversation...\n", m.spinner.View()))
	}

	switch {
	case m.vm.ShowContacts && m.vm.ShowThread:
		s.WriteString(lipgloss.JoinHorizontal(
			lipgloss.Top,
			contactsPaneStyle.Render(m.contactsView()),
			m.threadView(),
		))
	case m.vm.ShowThread:
		s.WriteString(m.threadView())
	default:
		s.WriteString(m.contactsView())
	}

	s.WriteString("\n")
	if m.pane == models.PaneThread {
		s.WriteString(helpStyle.Render("ctrl+s: send • ctrl+r: refresh • pgup/pgdn: scroll • esc: back • ctrl+c: quit"))
	} else {
		s.WriteString(helpStyle.Render("↑↓/jk: navigate • enter: open • d: delete • /: search • r: refresh • q: quit"))
	}

	return s.String()
}
