package main

import "github.com/khanhnv2901/cmpscan/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
