package main

import (
	"github.com/mdbridge/mdbridge/cmd"
)

func main() {
	cmd.Execute()
}
