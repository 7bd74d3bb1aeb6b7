package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/api"
	"github.com/mkruglov/roomcast/internal/config"
	"github.com/mkruglov/roomcast/internal/ui"
)

var (
	roomsFlags       connFlags
	flagRoomsMembers bool
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the rooms you participate in",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(roomsFlags.options())
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return fmt.Errorf("--token is required")
		}

		client := api.NewClient(cfg.APIBaseURL, cfg.Token)
		rooms, err := client.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		ui.RenderRoomTable(rooms)
		if flagRoomsMembers {
			for i := range rooms {
				fmt.Println()
				fmt.Println(ui.BoldStyle.Render(rooms[i].ID))
				fmt.Println(ui.ParticipantTableView(&rooms[i]))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsFlags.register(roomsCmd)
	roomsCmd.Flags().BoolVarP(&flagRoomsMembers, "members", "m", false, "Show each room's member list")
}
