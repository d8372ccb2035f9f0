package main

import (
	"fmt"
	"os"

	"github.com/06eren/Pc-Mobil-Bond/cmd/pcbond/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
