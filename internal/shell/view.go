package shell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/butterchat/butterchat/internal/feed"
	"github.com/butterchat/butterchat/internal/types"
)

const appTitle = "🦋💬 butterchat"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	headerHintStyle = lipgloss.NewStyle().
			Faint(true).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Padding(1, 2)

	roomStyle = lipgloss.NewStyle().
			Padding(0, 1)

	selectedRoomStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Bold(true).
				Foreground(lipgloss.Color("212"))

	sentStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("63"))

	receivedStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("240"))

	authorStyle = lipgloss.NewStyle().
			Faint(true)

	inputStyle = lipgloss.NewStyle().
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			Padding(0, 1)
)

func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	sections := []string{m.headerView()}

	switch m.state {
	case stateSignedOut:
		sections = append(sections, m.signedOutView())
	case stateRoomList:
		sections = append(sections, m.roomListView())
	case stateInRoom:
		sections = append(sections, m.inRoomView())
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) headerView() string {
	title := appTitle
	hint := ""

	switch m.state {
	case stateRoomList:
		hint = m.keys.SignOut.Help().Key + " " + m.keys.SignOut.Help().Desc
	case stateInRoom:
		title = "🦋💬 " + m.room.Name
		hint = m.keys.Back.Help().Key + " " + m.keys.Back.Help().Desc
	}

	left := headerStyle.Render(title)
	right := headerHintStyle.Render(hint)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) signedOutView() string {
	if m.signingIn {
		return promptStyle.Render("Signing in...")
	}
	return promptStyle.Render(fmt.Sprintf("Press %s to sign in with %s", m.keys.SignIn.Help().Key, m.svc.Provider))
}

func (m *Model) roomListView() string {
	var b strings.Builder

	b.WriteString(inputStyle.Render(m.roomInput.View()))
	b.WriteString("\n\n")

	if len(m.rooms) == 0 {
		b.WriteString(roomStyle.Render("No rooms yet. Name one above and press enter."))
	}

	for i, room := range m.rooms {
		line := fmt.Sprintf("%s  %s", room.Name, room.CreatedAt.Local().Format("Jan 2 15:04"))
		if i == m.cursor {
			b.WriteString(selectedRoomStyle.Render("▸ " + line))
		} else {
			b.WriteString(roomStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select · enter join · type a name + enter to create"))

	return b.String()
}

func (m *Model) inRoomView() string {
	feedLines := m.feedView()

	var b strings.Builder
	b.WriteString(feedLines)
	b.WriteString("\n")
	b.WriteString(inputStyle.Render(m.composeInput.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter send · pgup/pgdn scroll"))

	return b.String()
}

// feedHeight is the number of terminal rows available to the message
// scrollback: everything except the header, compose input, and help
// line.
func (m *Model) feedHeight() int {
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	return h
}

// feedView renders the message window pinned to the latest message
// unless the user has scrolled up.
func (m *Model) feedView() string {
	var lines []string
	for _, msg := range m.messages {
		lines = append(lines, m.messageView(msg))
	}

	height := m.feedHeight()
	if len(lines) > height {
		end := len(lines) - m.scrollback
		if end > len(lines) {
			end = len(lines)
		}
		if end < height {
			end = height
		}
		lines = lines[end-height : end]
	}

	for len(lines) < height {
		lines = append([]string{""}, lines...)
	}

	return strings.Join(lines, "\n")
}

func (m *Model) messageView(msg types.Message) string {
	author := msg.AuthorId
	if msg.AuthorId == m.user.Id && m.user.DisplayName != "" {
		author = m.user.DisplayName
	}

	bubble := authorStyle.Render(author) + " "
	if feed.Classify(msg, m.user, m.signedIn) == feed.Sent {
		bubble = sentStyle.Render(msg.Text) + " " + authorStyle.Render(author)
		return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, bubble)
	}

	bubble += receivedStyle.Render(msg.Text)
	return bubble
}
