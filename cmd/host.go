package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/config"
	"github.com/mkruglov/roomcast/internal/session"
	"github.com/mkruglov/roomcast/internal/ui"
)

var hostFlags connFlags

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Host a conference room and broadcast audio",
	Long: `Host a conference: creates a room, starts broadcasting the microphone,
and prints a link others can join with.

Examples:
  roomcast host --name alice
  roomcast host --name alice --domain conf.example.com
  roomcast host --token <jwt> --stun stun:stun.example.com:3478`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostConference(cmd)
	},
}

func hostConference(cmd *cobra.Command) error {
	cfg, err := config.Load(hostFlags.options())
	if err != nil {
		return err
	}

	fmt.Println()
	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	ctx, err := NewConferenceContext(cmd.Context(), cfg, hostFlags.name)
	if err != nil {
		sp.Error("Connection failed")
		return err
	}
	sp.Success("Connected")
	defer ctx.Close()

	created := make(chan session.State, 1)
	ctx.Store.Subscribe(func(st session.State) {
		if st.Room != nil {
			select {
			case created <- st:
			default:
			}
		}
	})
	ctx.Store.StartConference()

	// Show the shareable link before the conference view takes the screen.
	select {
	case st := <-created:
		fmt.Println(ui.NewRoomInfo(st.Room.ID, cfg.GetRoomLink(st.Room.ID)).View())
	case <-time.After(5 * time.Second):
		ui.PrintWarning("Room confirmation is taking long, continuing anyway")
	}

	return ctx.Run()
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostFlags.register(hostCmd)
}
