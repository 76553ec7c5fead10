// Package main is the calcbook command entry point.
package main

import "github.com/calcstack/calcbook/internal/cli"

func main() {
	cli.Execute()
}
