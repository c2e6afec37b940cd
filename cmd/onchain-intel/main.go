package main

import "onchain-intel/internal/cli"

func main() {
	cli.Execute()
}
