package main

import "typstlab/internal/cli"

func main() {
	cli.Execute()
}
