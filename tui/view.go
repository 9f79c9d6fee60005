package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/litechat/protocol"
	"github.com/gosuda/litechat/session"
)

func (m Model) View() string {
	if !m.authenticated {
		return m.loginView()
	}
	return m.chatView()
}

func (m Model) loginView() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("litechat") + "\n\n")
	s.WriteString("Username: " + m.usernameInput.View() + "\n")
	s.WriteString("Password: " + m.passwordInput.View() + "\n\n")
	if m.authErr != "" {
		s.WriteString(errorStyle.Render(m.authErr) + "\n")
	}
	if m.loading {
		s.WriteString(mutedStyle.Render("Signing in..."))
	} else {
		s.WriteString(mutedStyle.Render("Enter to sign in • Tab to switch field"))
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(s.String()))
}

func (m Model) chatView() string {
	header := headerStyle.Render(fmt.Sprintf("Chat as %s  %s", m.sess.User(), m.statusLine()))

	var footer strings.Builder
	if r := m.sess.Reply(); r != nil {
		footer.WriteString(quoteStyle.Render(fmt.Sprintf("Replying to %s: %s", r.Sender, r.Body)) +
			mutedStyle.Render("  (ctrl+r to cancel)") + "\n")
	}
	switch {
	case m.emojiOpen:
		footer.WriteString(m.emojiBar() + "\n")
	case m.attachOpen:
		footer.WriteString("Attach: " + m.attachInput.View() + "\n")
		if m.uploading {
			footer.WriteString(mutedStyle.Render("Uploading...") + "\n")
		}
		if m.uploadErr != "" {
			footer.WriteString(errorStyle.Render(m.uploadErr) + "\n")
		}
	case m.browsing:
		footer.WriteString(mutedStyle.Render("Browse: ↑/↓ move • r reply • d delete • esc back") + "\n")
	default:
		footer.WriteString(m.input.View() + "\n")
		hint := "Enter send • ctrl+e emoji • ctrl+a attach • esc browse"
		if m.sending {
			hint = "Sending..."
		}
		footer.WriteString(mutedStyle.Render(hint))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, header, m.vp.View(), footerStyle.Render(footer.String()))

	if m.notice != "" {
		notice := noticeStyle.Render(m.notice + "\n" + mutedStyle.Render("press any key"))
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, notice)
	}
	return body
}

func (m Model) statusLine() string {
	var parts []string
	if m.deps.Channel.Connected() {
		parts = append(parts, lipgloss.NewStyle().Foreground(accentColor).Render("●online"))
	} else {
		parts = append(parts, errorStyle.Render("●offline"))
	}
	switch m.sync {
	case syncRunning:
		parts = append(parts, mutedStyle.Render("syncing history..."))
	case syncFailed:
		parts = append(parts, errorStyle.Render("history sync failed"))
	}
	return strings.Join(parts, "  ")
}

func (m Model) emojiBar() string {
	var s strings.Builder
	for i, e := range emojiPalette {
		if i == m.emojiIdx {
			s.WriteString("[" + e + "]")
		} else {
			s.WriteString(" " + e + " ")
		}
	}
	s.WriteString("  " + mutedStyle.Render("←/→ pick • enter insert • esc close"))
	return s.String()
}

// refreshLog re-renders the message list into the viewport and pins the
// bottom, matching arrival order.
func (m *Model) refreshLog() {
	if m.sess == nil {
		return
	}
	entries := m.sess.Messages()
	lines := make([]string, 0, len(entries))
	for i, e := range entries {
		line := m.renderEntry(e)
		if m.browsing && i == m.cursor {
			line = cursorLineStyle.Render(line)
		}
		lines = append(lines, line)
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.browsing {
		m.vp.SetYOffset(m.cursor - m.vp.Height/2)
	} else {
		m.vp.GotoBottom()
	}
}

func (m Model) renderEntry(e session.Entry) string {
	mine := m.sess.Mine(e.Message)

	senderStyle := theirsSenderStyle
	if mine {
		senderStyle = mineSenderStyle
	}

	var body string
	switch {
	case e.Deleted:
		body = deletedStyle.Render("message deleted")
	case e.Type == protocol.KindFile:
		body = renderFile(e.Body)
	default:
		body = e.Body
	}

	var s strings.Builder
	if e.ReplyTo != nil {
		s.WriteString(quoteStyle.Render(fmt.Sprintf("┃ %s: %s", e.ReplyTo.Sender, e.ReplyTo.Body)) + "\n")
	}
	suffix := ""
	if e.Pending {
		suffix = mutedStyle.Render(" …")
	}
	s.WriteString(fmt.Sprintf("%s %s: %s%s",
		mutedStyle.Render(timestampLabel(e.Message)),
		senderStyle.Render(e.Sender),
		body,
		suffix,
	))

	if mine && m.width > 0 {
		return lipgloss.PlaceHorizontal(m.vp.Width, lipgloss.Right, s.String())
	}
	return s.String()
}

func renderFile(url string) string {
	label := protocol.FileLabel(url)
	switch protocol.ClassifyURL(url) {
	case protocol.MediaImage:
		return fmt.Sprintf("🖼  %s  %s", label, mutedStyle.Render(url))
	case protocol.MediaVideo:
		return fmt.Sprintf("🎞  %s  %s", label, mutedStyle.Render(url))
	default:
		return fmt.Sprintf("📎 %s  %s", label, mutedStyle.Render(url))
	}
}

func timestampLabel(msg protocol.Message) string {
	if t, ok := msg.Time(); ok {
		return "[" + t.Local().Format("15:04") + "]"
	}
	if msg.Timestamp != "" {
		return "[" + msg.Timestamp + "]"
	}
	return "[--:--]"
}
