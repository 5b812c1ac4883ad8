package main

import "github.com/aussiebroadwan/atelier/internal/cli"

func main() {
	cli.Execute()
}
