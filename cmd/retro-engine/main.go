package main

import "github.com/retrolens/retro-engine/internal/cli"

func main() {
	cli.Execute()
}
