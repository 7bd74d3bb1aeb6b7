package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// RoomTableView renders the rooms a user participates in.
func RoomTableView(rooms []protocol.Room) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatTitle
	t.AppendHeader(table.Row{"#", "Room ID", "Members", "Messages"})
	for i, room := range rooms {
		t.AppendRow(table.Row{
			i + 1,
			room.ID,
			len(room.Users),
			len(room.Messages),
		})
	}
	return t.Render()
}

// ParticipantTableView renders a room's member list with the owner marked.
func ParticipantTableView(room *protocol.Room) string {
	if room == nil || len(room.Users) == 0 {
		return MutedStyle.Render("No participants")
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatTitle
	t.AppendHeader(table.Row{"Name", "Peer ID", "Role"})
	for _, u := range room.Users {
		role := "listener"
		switch {
		case u.PeerID == room.Owner:
			role = "broadcaster"
		case u.PeerID == "":
			role = "audio clip"
		}
		t.AppendRow(table.Row{
			truncateString(u.Name, 30),
			truncateString(u.PeerID, 12),
			role,
		})
	}
	return t.Render()
}

func RenderRoomTable(rooms []protocol.Room) {
	fmt.Println(RoomTableView(rooms))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)

	return boxStyle.Render(content)
}
