package main

import "rageval/internal/cli"

func main() {
	cli.Execute()
}
