// Package tui is the terminal front end: a login screen gating a chat view
// with a message log, a composer, an emoji picker, replies and attachments.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/litechat/backend"
	"github.com/gosuda/litechat/channel"
	"github.com/gosuda/litechat/protocol"
	"github.com/gosuda/litechat/session"
	"github.com/gosuda/litechat/store"
)

// Realtime is the slice of the shared channel the view needs; satisfied by
// *channel.Channel.
type Realtime interface {
	Emit(event string, payload any) error
	Subscribe(event string, fn channel.Handler) int
	Unsubscribe(event string, id int)
	Connected() bool
}

// Deps are the injected services; the channel is the process-wide one
// created in main, never constructed here.
type Deps struct {
	Backend *backend.Client
	Media   *backend.MediaService
	Channel Realtime
	Cache   *store.Cache
}

const (
	composerDelay  = 400 * time.Millisecond
	pushBuffer     = 64
	cacheBacklog   = 200
	requestTimeout = 15 * time.Second
)

var emojiPalette = []string{"😀", "😂", "😍", "👍", "🙏", "🎉", "😅", "😭", "❤️", "🔥", "😎", "🤔"}

type syncState int

const (
	syncPending syncState = iota
	syncRunning
	syncReady
	syncFailed
)

type (
	loginDoneMsg   struct{ err error }
	historyDoneMsg struct {
		msgs []protocol.Message
		err  error
	}
	pushMsg         struct{ m protocol.Message }
	composerIdleMsg struct{}
	uploadDoneMsg   struct {
		url string
		err error
	}
	healthTickMsg struct{}
)

// Model is the bubbletea root. It doubles as the session gate: no username
// means the login view, a username means the chat view, and the transition
// is one-directional.
type Model struct {
	deps Deps

	width  int
	height int

	// login
	authenticated bool
	usernameInput textinput.Model
	passwordInput textinput.Model
	loginFocus    int
	authErr       string
	loading       bool

	// chat
	sess    *session.Session
	pushCh  chan protocol.Message
	subID   int
	vp      viewport.Model
	input   textinput.Model
	sending bool
	sync    syncState
	syncErr string
	notice  string

	// emoji picker
	emojiOpen bool
	emojiIdx  int

	// attachment
	attachOpen  bool
	attachInput textinput.Model
	uploading   bool
	uploadErr   string

	// message browsing (reply / delete selection)
	browsing bool
	cursor   int
}

func New(deps Deps) Model {
	username := textinput.New()
	username.Placeholder = "Username"
	username.CharLimit = 32
	username.Width = 30
	username.Focus()

	password := textinput.New()
	password.Placeholder = "Password"
	password.EchoMode = textinput.EchoPassword
	password.CharLimit = 64
	password.Width = 30

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 1000
	input.Width = 50

	attach := textinput.New()
	attach.Placeholder = "Path to file..."
	attach.CharLimit = 512
	attach.Width = 50

	return Model{
		deps:          deps,
		usernameInput: username,
		passwordInput: password,
		input:         input,
		attachInput:   attach,
		vp:            viewport.New(80, 20),
		pushCh:        make(chan protocol.Message, pushBuffer),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, healthTick())
}

// --- commands ---

func healthTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return healthTickMsg{} })
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return loginDoneMsg{err: m.deps.Backend.Login(ctx, username, password)}
	}
}

func (m Model) historyCmd() tea.Cmd {
	return func() tea.Msg {
		msgs, err := m.deps.Backend.HistoryWithRetry(context.Background(), func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("next", next).Msg("[tui] history retry")
		})
		return historyDoneMsg{msgs: msgs, err: err}
	}
}

func (m Model) waitPush() tea.Cmd {
	ch := m.pushCh
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return pushMsg{m: msg}
	}
}

func (m Model) uploadCmd(path string) tea.Cmd {
	deps := m.deps
	sender := m.sess.User()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		var (
			url string
			err error
		)
		if deps.Media != nil {
			url, err = deps.Media.Upload(ctx, path)
		} else {
			url, err = deps.Backend.Upload(ctx, sender, path)
		}
		return uploadDoneMsg{url: url, err: err}
	}
}

func composerIdle() tea.Cmd {
	return tea.Tick(composerDelay, func(time.Time) tea.Msg { return composerIdleMsg{} })
}

// --- update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp = viewport.New(msg.Width-2, max(msg.Height-7, 3))
		m.input.Width = max(msg.Width-12, 20)
		m.refreshLog()
		return m, nil

	case healthTickMsg:
		return m, healthTick()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.teardown()
			return m, tea.Quit
		}
		if !m.authenticated {
			return m.updateLogin(msg)
		}
		return m.updateChat(msg)

	case loginDoneMsg:
		m.loading = false
		if msg.err != nil {
			switch {
			case errors.Is(msg.err, backend.ErrInvalidCredentials):
				m.authErr = "Invalid credentials"
			case errors.Is(msg.err, backend.ErrUnreachable):
				m.authErr = "Cannot connect to server"
			default:
				m.authErr = msg.err.Error()
			}
			return m, nil
		}
		return m.enterChat()

	case historyDoneMsg:
		if msg.err != nil {
			m.sync = syncFailed
			m.syncErr = msg.err.Error()
			log.Warn().Err(msg.err).Msg("[tui] history sync failed")
			return m, nil
		}
		m.sync = syncReady
		m.sess.ReplaceHistory(msg.msgs)
		m.refreshLog()
		return m, nil

	case pushMsg:
		m.sess.Receive(msg.m)
		m.refreshLog()
		return m, m.waitPush()

	case composerIdleMsg:
		m.sending = false
		return m, nil

	case uploadDoneMsg:
		m.uploading = false
		if msg.err != nil {
			// raw error text, attachment kept in place for retry
			m.uploadErr = msg.err.Error()
			return m, nil
		}
		m.attachOpen = false
		m.attachInput.SetValue("")
		m.uploadErr = ""
		if _, err := m.sess.SendFile(msg.url); err != nil {
			m.notice = err.Error()
		}
		m.refreshLog()
		return m, nil
	}

	return m, nil
}

// enterChat promotes the typed username to the session identity and mounts
// the chat view: cache backlog first, then the history fetch, then pushes.
func (m Model) enterChat() (tea.Model, tea.Cmd) {
	user := m.usernameInput.Value()
	m.authenticated = true
	m.authErr = ""

	opts := []session.Option{}
	if m.deps.Cache != nil {
		opts = append(opts, session.WithCache(m.deps.Cache))
	}
	m.sess = session.New(user, m.deps.Channel, opts...)

	if m.deps.Cache != nil {
		if backlog, err := m.deps.Cache.LoadRecent(cacheBacklog); err == nil && len(backlog) > 0 {
			m.sess.ReplaceHistory(backlog)
		}
	}

	ch := m.pushCh
	m.subID = m.deps.Channel.Subscribe(protocol.EventReceiveMessage, func(data json.RawMessage) {
		var pm protocol.Message
		if err := json.Unmarshal(data, &pm); err != nil {
			log.Debug().Err(err).Msg("[tui] bad push payload")
			return
		}
		select {
		case ch <- pm:
		default:
			log.Warn().Msg("[tui] push buffer full, dropping")
		}
	})

	m.sync = syncRunning
	m.input.Focus()
	m.refreshLog()
	return m, tea.Batch(m.historyCmd(), m.waitPush(), textinput.Blink)
}

// teardown releases the push subscription; called on quit.
func (m *Model) teardown() {
	if m.subID != 0 {
		m.deps.Channel.Unsubscribe(protocol.EventReceiveMessage, m.subID)
		m.subID = 0
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "down", "up":
		m.loginFocus = (m.loginFocus + 1) % 2
		if m.loginFocus == 0 {
			m.usernameInput.Focus()
			m.passwordInput.Blur()
		} else {
			m.usernameInput.Blur()
			m.passwordInput.Focus()
		}
		return m, nil
	case "enter":
		if m.loading {
			return m, nil
		}
		if m.usernameInput.Value() == "" || m.passwordInput.Value() == "" {
			m.authErr = "Username and password are required"
			return m, nil
		}
		m.loading = true
		m.authErr = ""
		return m, m.loginCmd(m.usernameInput.Value(), m.passwordInput.Value())
	}
	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.usernameInput, cmd = m.usernameInput.Update(msg)
	} else {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.notice != "" {
		// blocking notice: any key dismisses
		m.notice = ""
		return m, nil
	}

	if m.emojiOpen {
		switch msg.String() {
		case "esc":
			m.emojiOpen = false
		case "left", "h":
			if m.emojiIdx > 0 {
				m.emojiIdx--
			}
		case "right", "l":
			if m.emojiIdx < len(emojiPalette)-1 {
				m.emojiIdx++
			}
		case "enter":
			m.input.SetValue(m.input.Value() + emojiPalette[m.emojiIdx])
			m.emojiOpen = false
		}
		return m, nil
	}

	if m.attachOpen {
		switch msg.String() {
		case "esc":
			m.attachOpen = false
			m.uploadErr = ""
			m.input.Focus()
			return m, nil
		case "enter":
			if m.uploading || m.attachInput.Value() == "" {
				return m, nil
			}
			if !m.deps.Channel.Connected() {
				m.notice = channel.ErrNotConnected.Error()
				return m, nil
			}
			m.uploading = true
			m.uploadErr = ""
			return m, m.uploadCmd(m.attachInput.Value())
		}
		var cmd tea.Cmd
		m.attachInput, cmd = m.attachInput.Update(msg)
		return m, cmd
	}

	if m.browsing {
		return m.updateBrowse(msg)
	}

	switch msg.String() {
	case "esc":
		if len(m.sess.Messages()) == 0 {
			return m, nil
		}
		m.browsing = true
		m.cursor = len(m.sess.Messages()) - 1
		m.input.Blur()
		m.refreshLog()
		return m, nil
	case "ctrl+e":
		m.emojiOpen = true
		m.emojiIdx = 0
		return m, nil
	case "ctrl+a":
		m.attachOpen = true
		m.attachInput.Focus()
		m.input.Blur()
		return m, textinput.Blink
	case "ctrl+r":
		m.sess.ClearReply()
		return m, nil
	case "enter":
		if m.sending {
			return m, nil
		}
		_, sent, err := m.sess.SendText(m.input.Value())
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		if !sent {
			return m, nil
		}
		m.input.SetValue("")
		m.sending = true
		m.refreshLog()
		return m, composerIdle()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := m.sess.Messages()
	switch msg.String() {
	case "esc", "q":
		m.browsing = false
		m.input.Focus()
		m.refreshLog()
		return m, textinput.Blink
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(entries)-1 {
			m.cursor++
		}
	case "r":
		if m.cursor < len(entries) {
			m.sess.SetReply(entries[m.cursor].Message)
			m.browsing = false
			m.input.Focus()
		}
	case "d":
		if m.cursor < len(entries) {
			target := entries[m.cursor].Message
			ok, err := m.sess.Delete(target)
			if err != nil {
				m.notice = err.Error()
			} else if !ok {
				m.notice = "You can only delete your own messages"
			}
			m.browsing = false
			m.input.Focus()
		}
	}
	m.refreshLog()
	return m, nil
}
