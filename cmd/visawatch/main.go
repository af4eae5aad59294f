package main

import "github.com/example/visa-watch/cmd"

func main() {
	cmd.Execute()
}
