package main

import (
	"os"

	"tablekeeper/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
