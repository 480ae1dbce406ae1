package main

import "github.com/autorp/autorp/internal/cli"

func main() {
	cli.Execute()
}
