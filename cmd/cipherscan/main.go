package main

import "github.com/adedayo/cipherscan/cmd/cipherscan/cmd"

var (
	version = "0.0.0" // deployed version will be taken from release tags
)

func main() {
	cmd.Execute(version)
}
