package main

import (
	"fmt"
	"os"

	"github.com/beginnings-dev/beginnings/cmd/beginnings/commands"
)

var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
