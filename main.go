package main

import "github.com/trobanga/enzflow/cmd"

func main() {
	cmd.Execute()
}
