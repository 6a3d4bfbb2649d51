// Command callsign is the operator CLI for the callsignd daemon.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
