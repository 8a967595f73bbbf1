package main

import (
	"fmt"
	"os"

	"github.com/maleexcel/welldyne-app/welldyne/welldynecli"
)

func main() {
	if err := welldynecli.GetApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
