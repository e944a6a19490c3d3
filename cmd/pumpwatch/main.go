package main

import "github.com/vietddude/pumpwatch/internal/cli"

func main() {
	cli.Execute()
}
