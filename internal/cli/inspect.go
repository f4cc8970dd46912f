package cli

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/aintyourcupoftea/PDF-Signer/internal/inspect"
)

func (a *app) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "List pages, content streams and XObjects of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return goerr.Wrap(err, "failed to open pdf", goerr.V("path", args[0]))
			}
			defer f.Close()

			rep, err := inspect.Inspect(f)
			if err != nil {
				return err
			}
			return rep.Write(a.stdout)
		},
	}
}
