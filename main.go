package main

import "github.com/derickschaefer/tsprep/cmd"

func main() {
	cmd.Execute()
}
