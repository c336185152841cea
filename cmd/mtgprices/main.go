package main

import (
	"mtgprices/internal/cli"
)

func main() {
	cli.Execute()
}
