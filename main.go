package main

import "github.com/nervosys/chasm/cmd"

func main() {
	cmd.Execute()
}
