package main

import (
	"github.com/JakeFAU/pagewatch/cmd"
)

func main() {
	cmd.Execute()
}
