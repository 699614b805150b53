package shell

import (
	"context"
	"log"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/butterchat/butterchat/internal/backend"
	"github.com/butterchat/butterchat/internal/directory"
	"github.com/butterchat/butterchat/internal/feed"
	"github.com/butterchat/butterchat/internal/session"
	"github.com/butterchat/butterchat/internal/types"
)

// uiState is the shell's top-level view.
type uiState int

const (
	stateSignedOut uiState = iota
	stateRoomList
	stateInRoom
)

// Backend-pushed events enter the program through the event channel
// and are delivered as these messages by a re-armed listen command.
type sessionChangedMsg struct {
	user     types.User
	signedIn bool
}

type roomsMsg struct {
	rooms []types.Room
}

type feedMsg struct {
	roomId   string
	messages []types.Message
}

// signInDoneMsg marks the end of an interactive sign-in flow, whatever
// its outcome; success is observed separately via sessionChangedMsg.
type signInDoneMsg struct{}

type roomCreatedMsg struct {
	room types.Room
	err  error
}

type messageSentMsg struct {
	err error
}

// Services are the injected collaborators the shell composes.
type Services struct {
	Session   *session.Session
	Directory *directory.Directory
	Feed      *feed.Feed
	// Provider is the identity provider kind passed to sign-in.
	Provider string
	Log      *log.Logger
}

// Model is the top-level bubbletea model: it switches between the
// signed-out prompt, the room list, and the in-room view, and owns
// the live subscriptions backing the visible view.
type Model struct {
	svc  Services
	keys KeyMap

	state  uiState
	width  int
	height int

	user     types.User
	signedIn bool

	signingIn bool

	rooms     []types.Room
	cursor    int
	roomInput textinput.Model

	room         types.Room
	messages     []types.Message
	composeInput textinput.Model
	// scrollback is how many lines the feed is scrolled up from the
	// latest message; zero pins the view to the bottom.
	scrollback int

	events        chan tea.Msg
	cancelSession func()
	roomSub       backend.Subscription
	feedSub       backend.Subscription
}

func NewModel(svc Services) *Model {
	roomInput := textinput.New()
	roomInput.Placeholder = "Chat Room Name"
	roomInput.CharLimit = 64

	composeInput := textinput.New()
	composeInput.Placeholder = "Type your message..."
	composeInput.CharLimit = 512

	m := &Model{
		svc:          svc,
		keys:         DefaultKeyMap(),
		state:        stateSignedOut,
		roomInput:    roomInput,
		composeInput: composeInput,
		events:       make(chan tea.Msg, 256),
	}

	m.cancelSession = svc.Session.OnChange(func(user types.User, signedIn bool) {
		m.postEvent(sessionChangedMsg{user: user, signedIn: signedIn})
	})

	// A restored session skips the sign-in prompt.
	if user, signedIn := svc.Session.Current(); signedIn {
		m.user = user
		m.signedIn = true
		m.enterRoomList()
	}

	return m
}

// postEvent hands a backend-pushed event to the UI loop. Dropping on
// a full channel is safe: every event carries a full snapshot, and a
// stalled UI will still catch up from the next one.
func (m *Model) postEvent(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
		m.svc.Log.Println("dropping ui event, channel is full")
	}
}

func listenForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(listenForEvent(m.events), textinput.Blink)
}

func (m *Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.roomInput.Width = message.Width - 4
		m.composeInput.Width = message.Width - 4
		return m, nil

	case sessionChangedMsg:
		return m.handleSessionChange(message)

	case roomsMsg:
		if m.signedIn {
			m.rooms = message.rooms
			if m.cursor >= len(m.rooms) {
				m.cursor = max(0, len(m.rooms)-1)
			}
		}
		return m, listenForEvent(m.events)

	case feedMsg:
		if m.state == stateInRoom && message.roomId == m.room.Id {
			m.messages = message.messages
			m.scrollback = 0
		}
		return m, listenForEvent(m.events)

	case signInDoneMsg:
		m.signingIn = false
		return m, nil

	case roomCreatedMsg:
		// On failure the input keeps its contents and nothing is
		// shown; on success it is cleared and the new room is
		// entered.
		if message.err == nil {
			m.roomInput.SetValue("")
			if m.state == stateRoomList {
				m.enterRoom(message.room)
			}
		}
		return m, nil

	case messageSentMsg:
		if message.err == nil {
			m.composeInput.SetValue("")
			m.scrollback = 0
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(message, m.keys.Quit) {
			m.teardown()
			return m, tea.Quit
		}

		switch m.state {
		case stateSignedOut:
			return m.handleSignedOutKeys(message)
		case stateRoomList:
			return m.handleRoomListKeys(message)
		case stateInRoom:
			return m.handleInRoomKeys(message)
		}
	}

	return m, nil
}

func (m *Model) handleSessionChange(msg sessionChangedMsg) (tea.Model, tea.Cmd) {
	m.user = msg.user
	m.signedIn = msg.signedIn

	if !msg.signedIn {
		m.leaveRoom()
		m.unsubscribeRooms()
		m.rooms = nil
		m.state = stateSignedOut
		return m, listenForEvent(m.events)
	}

	if m.state == stateSignedOut {
		m.enterRoomList()
	}
	return m, listenForEvent(m.events)
}

func (m *Model) handleSignedOutKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.SignIn) && !m.signingIn {
		m.signingIn = true
		return m, m.signInCmd()
	}
	return m, nil
}

func (m *Model) handleRoomListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.SignOut):
		m.svc.Session.SignOut()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rooms)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		// A non-empty name submits room creation; otherwise enter
		// joins the selected room. An empty name with no rooms is a
		// no-op.
		if name := m.roomInput.Value(); name != "" {
			return m, m.createRoomCmd(name)
		}
		if len(m.rooms) > 0 {
			m.enterRoom(m.rooms[m.cursor])
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.roomInput, cmd = m.roomInput.Update(msg)
	return m, cmd
}

func (m *Model) handleInRoomKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.leaveRoom()
		m.state = stateRoomList
		return m, nil
	case key.Matches(msg, m.keys.SignOut):
		m.svc.Session.SignOut()
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.scrollback += m.feedHeight() / 2
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.scrollback = max(0, m.scrollback-m.feedHeight()/2)
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		// Submit is disabled while the compose input is empty.
		text := m.composeInput.Value()
		if text == "" {
			return m, nil
		}
		return m, m.sendMessageCmd(m.room.Id, text)
	}

	var cmd tea.Cmd
	m.composeInput, cmd = m.composeInput.Update(msg)
	return m, cmd
}

func (m *Model) signInCmd() tea.Cmd {
	provider := m.svc.Provider
	sess := m.svc.Session
	return func() tea.Msg {
		sess.SignIn(context.Background(), provider)
		return signInDoneMsg{}
	}
}

func (m *Model) createRoomCmd(name string) tea.Cmd {
	dir := m.svc.Directory
	return func() tea.Msg {
		room, err := dir.CreateRoom(context.Background(), name)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (m *Model) sendMessageCmd(roomId, text string) tea.Cmd {
	msgFeed := m.svc.Feed
	author := m.user
	return func() tea.Msg {
		_, err := msgFeed.SendMessage(context.Background(), roomId, text, author)
		return messageSentMsg{err: err}
	}
}

// enterRoomList switches to the room list and opens its live
// subscription if one is not already standing.
func (m *Model) enterRoomList() {
	m.state = stateRoomList

	if m.roomSub != nil {
		return
	}

	sub, err := m.svc.Directory.ListRecentRooms(func(rooms []types.Room) {
		m.postEvent(roomsMsg{rooms: rooms})
	})
	if err != nil {
		m.svc.Log.Println("subscribe rooms:", err)
		return
	}
	m.roomSub = sub
	m.roomInput.Focus()
}

func (m *Model) enterRoom(room types.Room) {
	m.room = room
	m.messages = nil
	m.scrollback = 0
	m.state = stateInRoom

	roomId := room.Id
	sub, err := m.svc.Feed.SubscribeMessages(roomId, func(messages []types.Message) {
		m.postEvent(feedMsg{roomId: roomId, messages: messages})
	})
	if err != nil {
		m.svc.Log.Println("subscribe messages:", err)
		return
	}
	m.feedSub = sub
	m.composeInput.Focus()
}

// leaveRoom tears down the feed subscription tied to the in-room view.
// Stale updates already in flight are discarded by the roomId check in
// Update.
func (m *Model) leaveRoom() {
	if m.feedSub == nil {
		return
	}

	sub := m.feedSub
	m.feedSub = nil
	go sub.Unsubscribe()

	m.room = types.Room{}
	m.messages = nil
	m.composeInput.SetValue("")
}

func (m *Model) unsubscribeRooms() {
	if m.roomSub == nil {
		return
	}

	sub := m.roomSub
	m.roomSub = nil
	go sub.Unsubscribe()
}

// teardown releases every standing subscription and the session
// observer. Called on quit.
func (m *Model) teardown() {
	m.leaveRoom()
	m.unsubscribeRooms()
	m.cancelSession()
}
