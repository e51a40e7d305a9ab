package main

import "github.com/regrada-ai/tracemark/cmd"

func main() {
	cmd.Execute()
}
