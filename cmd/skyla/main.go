// Package main is the entry point for the skyla CLI.
package main

import "github.com/maulanasdqn/skyla-pos/internal/cli"

func main() {
	cli.Execute()
}
