package main

import "arstate/cmd"

func main() {
	cmd.Execute()
}
