package main

import "github.com/memorable/voicenotes/cmd"

func main() {
	cmd.Execute()
}
