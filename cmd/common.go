package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/keyring"
	"github.com/illarion/stegvault/internal/stego"
	"github.com/illarion/stegvault/internal/storage"
)

// PasswordSource tells where a password came from
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

var (
	ErrNoPassword   = errors.New("no password available")
	ErrNoHiddenData = errors.New("image does not contain hidden data")
)

// revealError marks extraction failures as ErrNoHiddenData so they are not
// reported as an embedding capacity problem.
func revealError(err error) error {
	if errors.Is(err, stego.ErrCapacity) || errors.Is(err, core.ErrEmptyFrame) || errors.Is(err, core.ErrUnknownMode) {
		return fmt.Errorf("%w: %w", ErrNoHiddenData, err)
	}
	return err
}

// getPassword resolves a password from STEGVAULT_PASSWORD, then the
// keyring entry for ledgerID, then a prompt. The caller clears it.
func (a *App) getPassword(prompt, ledgerID string, confirm bool) ([]byte, PasswordSource, error) {
	if pw := a.cfg.PasswordBytes(); pw != nil {
		return pw, SourceEnv, nil
	}

	if ledgerID != "" {
		if stored, err := keyring.GetPassword(ledgerID); err == nil && stored != "" {
			a.log.Debugf("using password from keyring for ledger %s", ledgerID)
			return []byte(stored), SourceKeyring, nil
		}
	}

	return a.promptPassword(prompt, confirm)
}

func (a *App) promptPassword(prompt string, confirm bool) ([]byte, PasswordSource, error) {
	if !a.interactive() {
		return nil, SourcePrompt, ErrNoPassword
	}
	pw, err := a.readPassword(prompt, confirm)
	if err != nil {
		return nil, SourcePrompt, err
	}
	return pw, SourcePrompt, nil
}

// ledgerID returns the ledger ID without creating the ledger
func ledgerID(sv *core.Stegvault) string {
	id, err := sv.GetLedgerID()
	if err != nil {
		return ""
	}
	return id
}

// offerToSavePassword asks whether a prompted password should be stored in
// the keyring for this ledger.
func (a *App) offerToSavePassword(sv *core.Stegvault, password []byte) {
	if !a.interactive() || a.cfg.NoLedger {
		return
	}
	if !a.confirm("Save password to keyring?") {
		return
	}
	id, err := sv.GetOrCreateLedgerID()
	if err != nil {
		a.log.Warnf("Cannot save password: %v", err)
		return
	}
	if err := keyring.SavePassword(id, string(password)); err != nil {
		a.log.Warnf("Cannot save password: %v", err)
		return
	}
	fmt.Fprintln(a.stderr, "Password saved to keyring")
}

// confirm asks a yes/no question on stderr, defaulting to no
func (a *App) confirm(question string) bool {
	fmt.Fprintf(a.stderr, "%s [y/N]: ", question)
	line, err := a.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// formatSize formats a byte count in human-readable form
func formatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}

// HandleError prints err in user terms and exits with status 1
func HandleError(err error) {
	fmt.Fprintln(os.Stderr, describeError(err))
	os.Exit(1)
}

func describeError(err error) string {
	var capErr *stego.CapacityError
	switch {
	case errors.Is(err, ErrNoHiddenData):
		return "Error: image does not contain hidden data\nUse --legacy for images written by the old tool"
	case errors.As(err, &capErr):
		return fmt.Sprintf("Error: payload does not fit: needs %d bits, image holds %d (%s of %s)",
			capErr.Needed, capErr.Available,
			formatSize(int64(capErr.Needed/8)), formatSize(int64(capErr.Available/8)))
	case errors.Is(err, core.ErrWrongPassword):
		return "Error: wrong password or corrupted image"
	case errors.Is(err, core.ErrPasswordRequired):
		return "Error: the hidden payload is encrypted, a password is required"
	case errors.Is(err, ErrNoPassword):
		return "Error: no password: set STEGVAULT_PASSWORD, save one with 'stegvault keyring save', or run interactively"
	case errors.Is(err, crypto.ErrInvalidCiphertext):
		return "Error: hidden data is too short to be an encrypted payload"
	case errors.Is(err, core.ErrNotInitialized), errors.Is(err, storage.ErrNotInitialized):
		return "Error: no ledger in this directory\nHide something first or run 'stegvault init'"
	case errors.Is(err, core.ErrNoPayload):
		return "Error: nothing to hide\nUse -m, -f, PLAIN_INPUT_FILE or pipe data on stdin"
	default:
		return fmt.Sprintf("Error: %s", err)
	}
}
