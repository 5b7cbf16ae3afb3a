package main

import "github.com/dxforge/forge/internal/cli"

func main() {
	cli.Execute()
}
