package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/config"
	"github.com/mkruglov/roomcast/internal/ui"
)

var joinFlags connFlags

var joinCmd = &cobra.Command{
	Use:     "join <room-id|url>",
	Aliases: []string{"j"},
	Short:   "Join a conference room as a listener",
	Long: `Join an existing conference room. Accepts a raw room id, a room link,
or a ?room= query fragment.

Examples:
  roomcast join ABC123 --name bob
  roomcast join "https://conf.example.com/r/ABC123" --name bob`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseRoomInput(args[0])
		if err != nil {
			return err
		}
		return joinConference(cmd, roomID)
	},
}

func joinConference(cmd *cobra.Command, roomID string) error {
	cfg, err := config.Load(joinFlags.options())
	if err != nil {
		return err
	}

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	ctx, err := NewConferenceContext(cmd.Context(), cfg, joinFlags.name)
	if err != nil {
		sp.Error("Connection failed")
		return err
	}
	sp.Success("Connected")
	defer ctx.Close()

	// The channel is open by now, so this sends the join right away.
	ctx.Store.SetPendingRoom(roomID)
	return ctx.Run()
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinFlags.register(joinCmd)
}
