package main

import "github.com/OpenTraceLab/OpenTraceOneWire/cmd/owtool/cmd"

func main() {
	cmd.Execute()
}
