package main

import "playas/internal/cli"

func main() {
	cli.Execute()
}
