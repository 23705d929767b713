package main

import "posclient/cmd/client/cmd"

func main() {
	cmd.Execute()
}
