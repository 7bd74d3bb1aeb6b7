package cmd

import (
	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/config"
	"github.com/mkruglov/roomcast/internal/server"
	"github.com/mkruglov/roomcast/internal/ui"
)

var (
	flagServeListen string
	flagServeSecret string
	flagServeRedis  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling and room server",
	Long: `Run the roomcast server: websocket signaling, room membership, chat
history, and token issuance. Rooms live in memory by default; point --redis
at a Redis instance to share rooms across server replicas.

Examples:
  roomcast serve
  roomcast serve --listen :9000 --redis localhost:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{
			ListenAddr: flagServeListen,
			JWTSecret:  flagServeSecret,
			RedisAddr:  flagServeRedis,
		})
		if err != nil {
			return err
		}

		var store server.RoomStore = server.NewMemoryStore()
		if cfg.RedisAddr != "" {
			rs, err := server.NewRedisStore(cmd.Context(), cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
			if err != nil {
				return err
			}
			defer rs.Close()
			store = rs
			ui.PrintInfof("Rooms backed by Redis at %s", cfg.RedisAddr)
		}

		ui.PrintInfof("Listening on %s", cfg.ListenAddr)
		return server.New(cfg.ListenAddr, cfg.JWTSecret, store).Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&flagServeListen, "listen", "l", "", "Listen address")
	serveCmd.Flags().StringVar(&flagServeSecret, "secret", "", "JWT signing secret")
	serveCmd.Flags().StringVar(&flagServeRedis, "redis", "", "Redis address for shared room state")
}
