package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
)

func (a *App) hideCommand() cli.Command {
	return cli.Command{
		Name:      "hide",
		Usage:     "embed a message or file in an image",
		ArgsUsage: "<cover image>",
		Description: "The payload comes from --message, --file, $PLAIN_INPUT_FILE or stdin, in\n" +
			"that order. It is encrypted unless --no-encrypt is given. Outputs that\n" +
			"are not PNG, BMP or TIFF get .png appended.",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "output, o", Usage: "where to write the stego image"},
			cli.StringFlag{Name: "message, m", Usage: "text to hide"},
			cli.StringFlag{Name: "file, f", Usage: "file to hide"},
			cli.BoolFlag{Name: "no-encrypt", Usage: "hide the payload without a password"},
			cli.BoolFlag{Name: "no-ledger", Usage: "do not record the image in the ledger"},
		},
		Action: a.hide,
	}
}

func (a *App) hide(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("hide takes exactly one cover image")
	}
	output := c.String("output")
	if output == "" {
		return fmt.Errorf("--output is required")
	}

	payload, source, err := a.readPayload(c)
	if err != nil {
		return err
	}
	defer crypto.ClearBytes(payload)

	sv, err := a.open(c.Bool("no-ledger"))
	if err != nil {
		return err
	}
	defer sv.Close()

	var password []byte
	pwSource := SourceEnv
	if !c.Bool("no-encrypt") {
		password, pwSource, err = a.getPassword("Enter password: ", ledgerID(sv), true)
		if err != nil {
			return err
		}
		defer crypto.ClearBytes(password)
	}

	report, err := sv.Hide(a.ctx, core.HideRequest{
		Input:    c.Args().First(),
		Output:   output,
		Payload:  payload,
		Source:   source,
		Password: password,
	})
	if err != nil {
		return err
	}

	a.log.Debugf("%s payload, %s of %s used", report.Mode, formatSize(int64(report.NeededBits/8)), formatSize(int64(report.CapacityBits/8)))
	fmt.Fprintln(a.stdout, report.Output)

	if pwSource == SourcePrompt {
		a.offerToSavePassword(sv, password)
	}
	return nil
}

// readPayload picks the payload and, for file payloads, its path
func (a *App) readPayload(c *cli.Context) ([]byte, string, error) {
	if c.IsSet("message") {
		return []byte(c.String("message")), "", nil
	}

	path := c.String("file")
	if path == "" {
		path = a.cfg.PlainInputFile
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("cannot read payload: %w", err)
		}
		return data, path, nil
	}

	if a.interactive() {
		return nil, "", core.ErrNoPayload
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, "", fmt.Errorf("cannot read payload from stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, "", core.ErrNoPayload
	}
	return data, "", nil
}
