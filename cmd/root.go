package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mkruglov/roomcast/internal/ui"
	"github.com/mkruglov/roomcast/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "roomcast",
	Short:   "Terminal audio conferencing over WebRTC rooms",
	Long:    `Roomcast is a command-line audio conferencing tool built on WebRTC. A broadcaster hosts a room, listeners join with its id or link, and everyone shares a text chat. Audio clips can be injected into the conference as synthetic participants, and the signaling server can be self-hosted with a single command.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
