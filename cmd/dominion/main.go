package main

import "dominion.gg/cmd/dominion/cmd"

func main() {
	cmd.Execute()
}
