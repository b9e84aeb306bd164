package main

import (
	"os"

	"github.com/awnumar/memguard"

	"securechat/cmd/chatclient/commands"
)

func main() {
	err := commands.Execute()
	memguard.Purge()
	if err != nil {
		os.Exit(commands.ExitCode(err))
	}
}
