package main

import "asc-manager/cmd"

func main() {
	cmd.Execute()
}
