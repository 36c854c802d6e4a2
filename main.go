package main

import "splitfetch/cmd"

func main() {
	cmd.Execute()
}
