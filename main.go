package main

import "github.com/BICAS-web3/Backend/internal/cli"

func main() {
	cli.Execute()
}
