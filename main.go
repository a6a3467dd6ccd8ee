package main

import "github.com/jakubwaller/dallebot/cmd"

func main() {
	cmd.Execute()
}
