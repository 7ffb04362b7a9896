package main

import "github.com/rolesclub/rolesbot/cmd"

func main() {
	cmd.Execute()
}
