package main

import "github.com/linanwx/ferry/cmd"

func main() {
	cmd.Execute()
}
