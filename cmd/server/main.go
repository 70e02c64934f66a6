package main

import "github.com/eventhub-live/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
