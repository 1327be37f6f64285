package main

import "github.com/mkarczewski/bookrag/internal/cli"

func main() {
	cli.Execute()
}
