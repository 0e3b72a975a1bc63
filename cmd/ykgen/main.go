package main

import "github.com/IAMD3/ykgen/internal/cli"

func main() {
	cli.Execute()
}
