package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/api"
	"github.com/mkruglov/roomcast/internal/config"
	"github.com/mkruglov/roomcast/internal/logging"
	"github.com/mkruglov/roomcast/internal/media"
	"github.com/mkruglov/roomcast/internal/netutil"
	"github.com/mkruglov/roomcast/internal/rtc"
	"github.com/mkruglov/roomcast/internal/session"
	"github.com/mkruglov/roomcast/internal/signaling"
	"github.com/mkruglov/roomcast/internal/ui"
)

// connFlags are the connection flags shared by the host and join commands.
type connFlags struct {
	domain   string
	insecure bool
	token    string
	name     string
	stun     string
	turn     string
	turnUser string
	turnPass string
	relay    bool
}

func (f *connFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.domain, "domain", "", "Signaling server domain")
	cmd.Flags().BoolVar(&f.insecure, "insecure", false, "Use ws/http instead of wss/https")
	cmd.Flags().StringVar(&f.token, "token", "", "Session token (issued on first use if empty)")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Display name")
	cmd.Flags().StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	cmd.Flags().StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	cmd.Flags().StringVar(&f.turnUser, "turn-user", "", "TURN username")
	cmd.Flags().StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	cmd.Flags().BoolVarP(&f.relay, "relay", "r", false, "Force relay mode")
}

func (f *connFlags) options() config.Options {
	return config.Options{
		Domain:     f.domain,
		Insecure:   f.insecure,
		Token:      f.token,
		STUNServer: f.stun,
		TURNServer: f.turn,
		TURNUser:   f.turnUser,
		TURNPass:   f.turnPass,
		ForceRelay: f.relay,
	}
}

// ConferenceContext bundles everything a live conference needs.
type ConferenceContext struct {
	Config  *config.Config
	Channel *signaling.Channel
	Store   *session.Store
	Client  *api.Client
}

// NewConferenceContext authenticates, wires the store to its collaborators,
// and opens the signaling channel.
func NewConferenceContext(ctx context.Context, cfg *config.Config, name string) (*ConferenceContext, error) {
	token := cfg.Token
	if token == "" {
		if name == "" {
			return nil, fmt.Errorf("either --token or --name is required")
		}
		issued, err := api.Login(ctx, cfg.APIBaseURL, name, "")
		if err != nil {
			return nil, err
		}
		token = issued
	}

	client := api.NewClient(cfg.APIBaseURL, token)
	channel := signaling.NewChannel(cfg.WebSocketURL)
	engine := media.NewPionEngine()
	factory := rtc.NewPionFactory(iceServers(cfg))
	if cfg.GetTURNServers() != nil && (cfg.ForceRelay || netutil.RestrictedNetwork()) {
		factory = rtc.NewRelayOnlyFactory(iceServers(cfg))
	}

	store := session.New(channel, factory, engine, client)
	store.Bind()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if _, err := channel.Connect(ctx, token); err != nil {
		return nil, err
	}

	return &ConferenceContext{
		Config:  cfg,
		Channel: channel,
		Store:   store,
		Client:  client,
	}, nil
}

// Run hands the terminal to the conference view. Logs are routed to a file
// for the duration so they do not tear the screen.
func (c *ConferenceContext) Run() error {
	if f, err := logging.InitFile("roomcast.log"); err == nil {
		defer f.Close()
	}
	return ui.RunConference(c.Store)
}

// Close leaves the room and shuts down the channel.
func (c *ConferenceContext) Close() {
	c.Store.StopConference()
	c.Channel.Close()
}

func iceServers(cfg *config.Config) []pion.ICEServer {
	servers := []pion.ICEServer{{URLs: cfg.GetSTUNServers()}}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:           turn,
			Username:       user,
			Credential:     pass,
			CredentialType: pion.ICECredentialTypePassword,
		})
	}
	return servers
}

func parseRoomInput(input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") {
		roomID, err := extractRoomIDFromURL(input)
		if err != nil {
			return "", err
		}
		ui.PrintSuccessf("Extracted room ID: %s", roomID)
		return roomID, nil
	}
	if id, ok := strings.CutPrefix(input, "?room="); ok {
		return id, nil
	}

	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}

	if id := parsedURL.Query().Get("room"); id != "" {
		return id, nil
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}
