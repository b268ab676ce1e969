// signalairctl is the CLI client for inspecting and administering a
// running signalaircore node.
package main

import "github.com/signalair/mesh/cmd/signalairctl/commands"

func main() {
	commands.Execute()
}
