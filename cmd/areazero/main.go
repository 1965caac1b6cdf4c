package main

import "areazero/internal/cli"

func main() {
	cli.Execute()
}
