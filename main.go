package main

import "github.com/lockplane/ownershift/cmd"

func main() {
	cmd.Execute()
}
