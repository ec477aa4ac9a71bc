package main

import "github.com/mverdi/goILRouter/internal/cli"

func main() {
	cli.Execute()
}
