package main

import (
	"remitlend/cmd/remitlend/cmd"
)

func main() {
	cmd.Execute()
}
