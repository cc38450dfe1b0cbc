package main

import (
	"fmt"
	"os"

	"github.com/local/pdfocr/cmd/pdfocr/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		code, msg := commands.Describe(err)
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(code)
	}
}
