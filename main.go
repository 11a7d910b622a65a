package main

import "github.com/tw1nflame/chat-langchain/cmd"

func main() {
	cmd.Execute()
}
