package main

import "github.com/concordlab/concord/internal/cli"

func main() {
	cli.Execute()
}
