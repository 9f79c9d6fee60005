// Package session holds the chat view-model: the ordered message list, the
// reply target, and the reconciliation of locally appended messages against
// server-pushed updates.
package session

import (
	"strconv"
	"strings"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/litechat/protocol"
)

// Emitter is the outbound half of the realtime channel.
type Emitter interface {
	Emit(event string, payload any) error
}

// Appender persists reconciled messages; satisfied by *store.Cache.
type Appender interface {
	Append(m protocol.Message) error
}

// Entry is a list item: the wire message plus whether it is still an
// optimistic local append awaiting its server echo.
type Entry struct {
	protocol.Message
	Pending bool
}

// Session is the state behind one chat view. All methods are safe for
// concurrent use; channel handlers and the UI loop share it.
type Session struct {
	mu      sync.Mutex
	user    string
	emitter Emitter
	cache   Appender
	newID   func() string

	entries []Entry
	byKey   map[string]int
	reply   *protocol.ReplyRef
}

// Option configures a Session at construction.
type Option func(*Session)

// WithCache attaches a local history cache fed by every reconciled message.
func WithCache(a Appender) Option {
	return func(s *Session) { s.cache = a }
}

func New(user string, em Emitter, opts ...Option) *Session {
	gen, err := nanoid.Standard(21)
	if err != nil {
		// nanoid only fails on invalid lengths; keep a unique-enough fallback
		gen = func() string { return strconv.FormatInt(time.Now().UnixNano(), 36) }
	}
	s := &Session{
		user:    user,
		emitter: em,
		newID:   gen,
		byKey:   map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// User returns the session identity.
func (s *Session) User() string { return s.user }

// Mine reports whether m was sent by the session user. Comparison is
// case-sensitive by contract.
func (s *Session) Mine(m protocol.Message) bool { return m.Sender == s.user }

// Messages returns a snapshot of the visible list in order.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.entries...)
}

// ReplaceHistory swaps the whole list for the server-provided sequence,
// preserving its order. Pending local sends that have not been echoed yet
// are carried over so an in-flight message is not dropped by a late fetch.
func (s *Session) ReplaceHistory(msgs []protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []Entry
	for _, e := range s.entries {
		if e.Pending {
			pending = append(pending, e)
		}
	}
	s.entries = s.entries[:0]
	s.byKey = map[string]int{}
	for _, m := range msgs {
		s.appendLocked(Entry{Message: m})
	}
	for _, e := range pending {
		if _, dup := s.byKey[e.Key()]; !dup {
			s.appendLocked(e)
		}
	}
}

// SendText emits the trimmed-nonblank draft as a text message (or a reply
// when a reply target is set), appends it optimistically and clears the
// reply target. It reports whether anything was sent; blank drafts are a
// no-op and the caller keeps the draft on error.
func (s *Session) SendText(text string) (protocol.Message, bool, error) {
	if strings.TrimSpace(text) == "" {
		return protocol.Message{}, false, nil
	}
	s.mu.Lock()
	m := protocol.Message{
		ClientID:  s.newID(),
		Sender:    s.user,
		Body:      text,
		Type:      protocol.KindText,
		Timestamp: time.Now().Format(time.RFC3339),
		ReplyTo:   s.reply,
	}
	s.mu.Unlock()

	event := protocol.EventSendMessage
	if m.ReplyTo != nil {
		event = protocol.EventSendReply
	}
	if err := s.emitter.Emit(event, m); err != nil {
		return protocol.Message{}, false, err
	}

	s.mu.Lock()
	s.appendLocked(Entry{Message: m, Pending: true})
	s.reply = nil
	s.mu.Unlock()
	return m, true, nil
}

// SendFile emits a file message referencing an already-uploaded media URL
// and appends it optimistically. The echo reconciles by client key, so the
// double path (local append + server broadcast) does not duplicate.
func (s *Session) SendFile(url string) (protocol.Message, error) {
	m := protocol.Message{
		ClientID:  s.newID(),
		Sender:    s.user,
		Body:      url,
		Type:      protocol.KindFile,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if err := s.emitter.Emit(protocol.EventSendMessage, m); err != nil {
		return protocol.Message{}, err
	}
	s.mu.Lock()
	s.appendLocked(Entry{Message: m, Pending: true})
	s.mu.Unlock()
	return m, nil
}

// Delete emits a delete intent for m, but only when the session user is the
// sender; anything else is a no-op. The list is not touched locally: the
// deleted flag flips when the server echoes the update back.
func (s *Session) Delete(m protocol.Message) (bool, error) {
	if m.Sender != s.user {
		return false, nil
	}
	if err := s.emitter.Emit(protocol.EventDeleteMessage, protocol.Message{
		ID:       m.ID,
		ClientID: m.ClientID,
		Sender:   m.Sender,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// Receive reconciles a server push with the local list:
//   - a payload matching a pending local send by key replaces that entry,
//   - a deleted flag for a known message flips it in place,
//   - anything else appends in arrival order.
func (s *Session) Receive(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[m.Key()]; ok && m.Key() != "" {
		e := s.entries[i]
		if m.Deleted {
			e.Deleted = true
		} else {
			e.Message = m
		}
		e.Pending = false
		s.entries[i] = e
		s.persist(e.Message)
		return
	}
	if m.Deleted && m.ID != "" {
		// delete echo for a message we only know by server id
		for i := range s.entries {
			if s.entries[i].ID == m.ID {
				s.entries[i].Deleted = true
				s.persist(s.entries[i].Message)
				return
			}
		}
	}
	s.appendLocked(Entry{Message: m})
	s.persist(m)
}

// SetReply marks m as the reply target for the next SendText.
func (s *Session) SetReply(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = m.Reply()
}

// ClearReply drops the reply target.
func (s *Session) ClearReply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = nil
}

// Reply returns the current reply target, nil when not replying.
func (s *Session) Reply() *protocol.ReplyRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reply
}

func (s *Session) appendLocked(e Entry) {
	if k := e.Key(); k != "" {
		s.byKey[k] = len(s.entries)
	}
	s.entries = append(s.entries, e)
}

func (s *Session) persist(m protocol.Message) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Append(m); err != nil {
		log.Debug().Err(err).Msg("[session] persist message")
	}
}
