package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mkruglov/roomcast/internal/session"
)

// stateMsg carries a fresh session snapshot into the Bubble Tea loop.
type stateMsg session.State

type keyMap struct {
	Mute      key.Binding
	Broadcast key.Binding
	Chat      key.Binding
	Drop      key.Binding
	Quit      key.Binding
}

var conferenceKeys = keyMap{
	Mute:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute/unmute")),
	Broadcast: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "start/stop broadcast")),
	Chat:      key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i", "chat")),
	Drop:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "drop last clip")),
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// ConferenceModel renders the live conference: members, incoming streams,
// chat history, and the local broadcast controls. Every store mutation
// arrives as a complete snapshot; the model never mutates session state
// itself, it only issues commands back to the store.
type ConferenceModel struct {
	store *session.Store
	state session.State

	input   textinput.Model
	typing  bool
	spinner spinner.Model
	status  string

	width  int
	height int
}

// NewConferenceModel creates the conference view over a bound store.
func NewConferenceModel(store *session.Store) *ConferenceModel {
	in := textinput.New()
	in.Placeholder = "message, /play <file.mp3>, /drop <name>"
	in.CharLimit = 512
	in.Width = 60

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ConferenceModel{
		store:   store,
		state:   store.Get(),
		input:   in,
		spinner: s,
		width:   80,
		height:  24,
	}
}

func (m *ConferenceModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *ConferenceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case stateMsg:
		m.state = session.State(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = min(60, msg.Width-10)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.typing {
			switch msg.String() {
			case "esc":
				m.typing = false
				m.input.Blur()
			case "enter":
				m.submitInput()
			default:
				var cmd tea.Cmd
				m.input, cmd = m.input.Update(msg)
				cmds = append(cmds, cmd)
			}
			break
		}

		switch {
		case key.Matches(msg, conferenceKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, conferenceKeys.Mute):
			m.store.ToggleMute()
		case key.Matches(msg, conferenceKeys.Broadcast):
			m.store.ToggleConference()
		case key.Matches(msg, conferenceKeys.Drop):
			m.dropLastClip()
		case key.Matches(msg, conferenceKeys.Chat):
			m.typing = true
			m.status = ""
			cmds = append(cmds, m.input.Focus())
		}
	}

	return m, tea.Batch(cmds...)
}

// submitInput sends the typed line: plain text goes to chat, /play injects
// an audio clip, /drop removes one by name.
func (m *ConferenceModel) submitInput() {
	text := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	m.typing = false
	m.input.Blur()
	if text == "" {
		return
	}

	switch {
	case strings.HasPrefix(text, "/play "):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/play "))
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := m.store.LoadAudioFile(path, name); err != nil {
			m.status = FormatError(err)
			return
		}
		m.status = fmt.Sprintf("%s playing %s", IconMusic, name)

	case strings.HasPrefix(text, "/drop "):
		name := strings.TrimSpace(strings.TrimPrefix(text, "/drop "))
		if !m.dropClipByName(name) {
			m.status = WarningStyle.Render(fmt.Sprintf("no clip named %q", name))
		}

	default:
		m.store.SendMessage(text)
	}
}

func (m *ConferenceModel) dropClipByName(name string) bool {
	for _, fu := range m.state.FakeUsers {
		if fu.Name == name {
			m.store.DropClient(fu.TrackID)
			return true
		}
	}
	return false
}

func (m *ConferenceModel) dropLastClip() {
	if n := len(m.state.FakeUsers); n > 0 {
		m.store.DropClient(m.state.FakeUsers[n-1].TrackID)
	}
}

func (m *ConferenceModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Roomcast Conference", IconBroadcast)))
	b.WriteString("\n")

	st := m.state
	switch {
	case !st.Authenticated:
		b.WriteString(fmt.Sprintf("%s Signing in...\n", m.spinner.View()))
	case st.Room == nil && st.PendingRoomID != "":
		b.WriteString(fmt.Sprintf("%s Joining room %s...\n", m.spinner.View(), st.PendingRoomID))
	case st.Room == nil:
		b.WriteString(fmt.Sprintf("%s Connecting...\n", m.spinner.View()))
	default:
		b.WriteString(m.viewRoom())
	}

	if m.typing {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.status + "\n")
	}

	b.WriteString("\n" + m.viewFooter())
	return ContainerStyle.Render(b.String())
}

func (m *ConferenceModel) viewRoom() string {
	st := m.state
	var b strings.Builder

	if st.ConferenceLink != "" {
		b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %s", IconLink, st.ConferenceLink)))
		b.WriteString("\n\n")
	}

	// Local status line
	micIcon := IconMic
	micText := "live"
	if !st.Broadcasting {
		micIcon = IconWaiting
		micText = "not broadcasting"
	} else if st.Muted {
		micIcon = IconMuted
		micText = "muted"
	}
	b.WriteString(fmt.Sprintf("%s %s  %s\n\n",
		micIcon, BoldStyle.Render(st.Username), MutedStyle.Render(micText)))

	// Members panel
	var members strings.Builder
	members.WriteString(BoldStyle.Render(fmt.Sprintf("%s Members (%d)", IconPeer, len(st.Users))))
	members.WriteString("\n")
	for _, u := range st.Users {
		link := st.Links[u.PeerID]
		if link == "" {
			link = "no link"
		}
		members.WriteString(fmt.Sprintf("  %s %s\n",
			truncateString(u.Name, 24), MutedStyle.Render("["+link+"]")))
	}
	for _, fu := range st.FakeUsers {
		members.WriteString(fmt.Sprintf("  %s %s %s\n",
			IconMusic, truncateString(fu.Name, 22), MutedStyle.Render("[clip]")))
	}
	b.WriteString(PanelStyle.Render(members.String()))
	b.WriteString("\n")

	// Incoming streams
	if len(st.Streams) > 0 {
		var streams strings.Builder
		streams.WriteString(BoldStyle.Render(fmt.Sprintf("%s Listening to", IconSpeaker)))
		streams.WriteString("\n")
		for _, s := range st.Streams {
			name := s.Name
			if name == "" {
				name = truncateString(s.TrackID, 12)
			}
			streams.WriteString(fmt.Sprintf("  %s (%s)\n", name, s.Kind))
		}
		b.WriteString(PanelStyle.Render(streams.String()))
		b.WriteString("\n")
	}

	// Chat tail
	var chat strings.Builder
	chat.WriteString(BoldStyle.Render(fmt.Sprintf("%s Chat", IconChat)))
	chat.WriteString("\n")
	msgs := st.Messages
	if len(msgs) > chatTail {
		msgs = msgs[len(msgs)-chatTail:]
	}
	if len(msgs) == 0 {
		chat.WriteString(MutedStyle.Render("  no messages yet\n"))
	}
	for _, msg := range msgs {
		chat.WriteString(fmt.Sprintf("  %s %s\n",
			SubtitleStyle.Render(msg.Author+":"), truncateString(msg.Text, 60)))
	}
	b.WriteString(PanelStyle.Render(chat.String()))

	return b.String()
}

const chatTail = 8

func (m *ConferenceModel) viewFooter() string {
	if m.typing {
		return FooterStyle.Render("enter send · esc cancel")
	}
	return FooterStyle.Render("m mute · b broadcast · i chat · d drop clip · q quit")
}

// RunConference runs the conference view until the user quits. Store
// snapshots are forwarded into the program as messages.
func RunConference(store *session.Store) error {
	model := NewConferenceModel(store)
	program := tea.NewProgram(model, tea.WithAltScreen())
	store.Subscribe(func(st session.State) {
		program.Send(stateMsg(st))
	})
	_, err := program.Run()
	return err
}
