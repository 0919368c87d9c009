package main

import (
	"coldbench/cmd"
)

func main() {
	cmd.Execute()
}
