// Package main provides the glasses CLI.
//
// Usage:
//
//	glasses [flags] <command>
//
// Commands:
//
//	run         - Run the voice dialogue engine against the backend
//	audio-test  - Record from the microphone, save it, and play it back
//	backend-sim - Serve a scripted dialogue backend for development
//	version     - Print the build version
//
// Configuration:
//
//	--config accepts a YAML file or the firmware's system_para.conf.
//	A .env file and GLASSES_* environment variables override it.
package main

import (
	"fmt"
	"os"

	"github.com/teslashibe/go-glasses/cmd/glasses/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
