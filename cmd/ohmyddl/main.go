package main

import "github.com/hwenwur/oh-my-ddl/cmd/ohmyddl/cmd"

func main() {
	cmd.Execute()
}
