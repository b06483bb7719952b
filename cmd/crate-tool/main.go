package main

import "crate-tool/internal/cli"

func main() {
	cli.Execute()
}
