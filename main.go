package main

import "github.com/ngld/henge/cmd"

func main() {
	cmd.Execute()
}
