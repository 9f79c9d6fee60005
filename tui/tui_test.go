package tui

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-chi/chi/v5"

	"github.com/gosuda/litechat/backend"
	"github.com/gosuda/litechat/channel"
	"github.com/gosuda/litechat/protocol"
)

type fakeRealtime struct {
	mu        sync.Mutex
	emits     []protocol.Envelope
	handlers  map[int]channel.Handler
	nextID    int
	connected bool
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{handlers: map[int]channel.Handler{}, connected: true}
}

func (f *fakeRealtime) Emit(event string, payload any) error {
	if !f.connected {
		return channel.ErrNotConnected
	}
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.emits = append(f.emits, env)
	f.mu.Unlock()
	return nil
}

func (f *fakeRealtime) Subscribe(event string, fn channel.Handler) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[f.nextID] = fn
	return f.nextID
}

func (f *fakeRealtime) Unsubscribe(event string, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, id)
}

func (f *fakeRealtime) Connected() bool { return f.connected }

func (f *fakeRealtime) sent() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.emits...)
}

func newLoginBackend(t *testing.T) *backend.Client {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/messages", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return backend.New(srv.URL)
}

func keyPress(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg(tea.Key{Type: k}) }

// loginAs walks the model through the login transition as "alice" with an
// empty history, returning the mounted chat view.
func loginAs(t *testing.T, rt *fakeRealtime) Model {
	t.Helper()
	m := New(Deps{Backend: newLoginBackend(t), Channel: rt})
	m.usernameInput.SetValue("alice")
	m.passwordInput.SetValue("pw")

	next, cmd := m.updateLogin(keyPress(tea.KeyEnter))
	m = next.(Model)
	if !m.loading || cmd == nil {
		t.Fatalf("expected login request to start")
	}
	res, ok := cmd().(loginDoneMsg)
	if !ok {
		t.Fatalf("expected loginDoneMsg")
	}
	if res.err != nil {
		t.Fatalf("login: %v", res.err)
	}
	next, _ = m.Update(res)
	m = next.(Model)
	if !m.authenticated || m.sess == nil {
		t.Fatalf("login success must mount the chat view")
	}
	next, _ = m.Update(historyDoneMsg{msgs: nil})
	m = next.(Model)
	if m.sync != syncReady {
		t.Fatalf("expected history sync to settle")
	}
	return m
}

func TestLoginThenSendHello(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)

	m.input.SetValue("hello")
	next, _ := m.updateChat(keyPress(tea.KeyEnter))
	m = next.(Model)

	sent := rt.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly one emit, got %d", len(sent))
	}
	if sent[0].Event != protocol.EventSendMessage {
		t.Fatalf("expected %s, got %s", protocol.EventSendMessage, sent[0].Event)
	}
	var msg protocol.Message
	if err := json.Unmarshal(sent[0].Data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Sender != "alice" || msg.Body != "hello" || msg.Type != protocol.KindText {
		t.Fatalf("unexpected wire shape: %+v", msg)
	}
	if m.input.Value() != "" {
		t.Fatalf("composer not cleared after send")
	}
	if !m.sending {
		t.Fatalf("composer should be gated while the send settles")
	}
	next, _ = m.Update(composerIdleMsg{})
	m = next.(Model)
	if m.sending {
		t.Fatalf("composer gate should release")
	}
}

func TestBlankDraftDoesNotEmit(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)

	m.input.SetValue("   ")
	next, _ := m.updateChat(keyPress(tea.KeyEnter))
	m = next.(Model)

	if len(rt.sent()) != 0 {
		t.Fatalf("blank draft must not emit")
	}
	if m.input.Value() != "   " {
		t.Fatalf("blank draft must stay in the composer")
	}
}

func TestIncomingPushAppends(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)

	push := protocol.Message{Sender: "bob", Body: "hi", Type: protocol.KindText, Timestamp: "2026-08-29T10:00:00Z"}
	next, _ := m.Update(pushMsg{m: push})
	m = next.(Model)

	entries := m.sess.Messages()
	if len(entries) != 1 || entries[0].Sender != "bob" {
		t.Fatalf("push not appended: %+v", entries)
	}
	if m.sess.Mine(entries[0].Message) {
		t.Fatalf("bob's push classified as mine")
	}
}

func TestSendBlockedWhileDisconnected(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)
	rt.connected = false

	m.input.SetValue("hello")
	next, _ := m.updateChat(keyPress(tea.KeyEnter))
	m = next.(Model)

	if m.notice == "" {
		t.Fatalf("expected a blocking notice while disconnected")
	}
	if m.input.Value() != "hello" {
		t.Fatalf("draft must survive a failed send")
	}
}

func TestEmojiInsertAppendsToDraft(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)

	m.input.SetValue("hi ")
	next, _ := m.updateChat(tea.KeyMsg(tea.Key{Type: tea.KeyCtrlE}))
	m = next.(Model)
	if !m.emojiOpen {
		t.Fatalf("ctrl+e must open the picker")
	}
	next, _ = m.updateChat(keyPress(tea.KeyEnter))
	m = next.(Model)
	if m.emojiOpen {
		t.Fatalf("insert must close the picker")
	}
	if m.input.Value() != "hi "+emojiPalette[0] {
		t.Fatalf("glyph not appended: %q", m.input.Value())
	}
}

func TestUploadFailureKeepsAttachment(t *testing.T) {
	rt := newFakeRealtime()
	m := loginAs(t, rt)

	m.attachOpen = true
	m.attachInput.SetValue("/tmp/pic.png")
	m.uploading = true
	next, _ := m.Update(uploadDoneMsg{err: errAttach})
	m = next.(Model)

	if m.uploadErr == "" {
		t.Fatalf("raw upload error must be surfaced")
	}
	if m.attachInput.Value() != "/tmp/pic.png" {
		t.Fatalf("attachment must stay in place for retry")
	}
	if len(rt.sent()) != 0 {
		t.Fatalf("failed upload must not emit")
	}
}

var errAttach = errors.New("upload failed: 413 Request Entity Too Large")
