package main

import "github.com/nvr-ai/go-classify/cli"

func main() {
	cli.Execute()
}
