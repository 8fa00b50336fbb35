// Package main is the entry point for the mdl binary.
package main

import (
	"os"

	cli "mdl-rewrite/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
