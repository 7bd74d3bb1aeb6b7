package main

import (
	"github.com/mkruglov/roomcast/cmd"
	"github.com/mkruglov/roomcast/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
