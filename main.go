package main

import "github.com/itsmostafa/goconsole/cmd"

func main() {
	cmd.Execute()
}
