package cli

import (
	"errors"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/aintyourcupoftea/PDF-Signer/internal/stamp"
)

func (a *app) signCommand() *cobra.Command {
	var in, image, out string

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Stamp a signature image onto a PDF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate(in, image, out); err != nil {
				return err
			}
			return a.sign(cmd, in, image, out)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&in, "in", "", "input pdf file")
	fs.StringVar(&image, "image", "", "signature image file")
	fs.StringVar(&out, "out", "", "output pdf file")
	addPlacementFlags(fs, &a.cfg)

	return cmd
}

func validate(in, image, out string) error {
	if in == "" || image == "" || out == "" {
		return errors.New("in/image/out required")
	}
	if in == out {
		return errors.New("out must differ from in")
	}
	return nil
}

func (a *app) sign(cmd *cobra.Command, in, image, out string) error {
	src, err := os.Open(in)
	if err != nil {
		return goerr.Wrap(err, "failed to open input pdf", goerr.V("path", in))
	}
	defer src.Close()

	img, err := os.Open(image)
	if err != nil {
		return goerr.Wrap(err, "failed to open signature image", goerr.V("path", image))
	}
	defer img.Close()

	signed, err := a.stamper().Stamp(cmd.Context(), src, img, a.cfg.Placement())
	if err != nil {
		return err
	}

	if err := writeFileAtomic(out, signed); err != nil {
		return err
	}

	a.logger.Info().Str("in", in).Str("out", out).Int("bytes", len(signed)).Msg("signed pdf written")
	return nil
}

func (a *app) stamper() *stamp.Stamper {
	return stamp.New(
		stamp.WithLogger(a.logger),
		stamp.WithDPI(a.cfg.DPI),
		stamp.WithMaxImagePixels(a.cfg.MaxImagePixels),
	)
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write output", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return goerr.Wrap(err, "failed to move output into place", goerr.V("path", path))
	}
	return nil
}
