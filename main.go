package main

import "github.com/DJA-prog/Serial-Gui/cmd"

func main() {
	cmd.Execute()
}
