package main

import "circulation/cmd/command"

func main() {
	command.Execute()
}
