package main

import "github.com/eddndev/agentic-core/cmd"

func main() {
	cmd.Execute()
}
