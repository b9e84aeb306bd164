package main

import (
	"os"

	"github.com/awnumar/memguard"

	"securechat/cmd/chatserver/commands"
)

func main() {
	err := commands.Execute()
	memguard.Purge()
	if err != nil {
		os.Exit(1)
	}
}
