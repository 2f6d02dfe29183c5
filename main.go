package main

import "github.com/Laisky/api-aggregator/cmd"

func main() {
	cmd.Execute()
}
