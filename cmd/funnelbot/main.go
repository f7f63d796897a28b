package main

import "github.com/leadgenlab/funnelbot/internal/cli"

func main() {
	cli.Execute()
}
