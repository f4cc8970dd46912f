package main

import (
	"os"

	"github.com/aintyourcupoftea/PDF-Signer/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
