package main

import "github.com/bryanchriswhite/WinWatch/cmd/winwatch/commands"

func main() {
	commands.Execute()
}
