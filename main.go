package main

import "github.com/tanq16/chunkget/cmd"

func main() {
	cmd.Execute()
}
