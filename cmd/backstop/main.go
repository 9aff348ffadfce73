package main

import "github.com/vietddude/backstop/internal/cli"

func main() {
	cli.Execute()
}
