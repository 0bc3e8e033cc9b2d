// Command supportdesk runs the CultPass customer-support desk.
//
// Usage:
//
//	supportdesk seed                 create and fill the CultPass database
//	supportdesk chat --thread t1     talk to the desk in the terminal
//	supportdesk serve --addr :8080   serve the desk over HTTP
//
// Configuration is read from --config (YAML or JSON), then FLOWDESK_*
// environment variables. A .env file in the working directory is loaded
// first when present.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
