package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/illarion/stegvault/internal/config"
	"github.com/illarion/stegvault/internal/core"
	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/imageio"
	"github.com/illarion/stegvault/internal/keyring"
	"github.com/illarion/stegvault/internal/logger"
	"github.com/illarion/stegvault/internal/stego"
	"github.com/illarion/stegvault/internal/storage"
)

type testApp struct {
	*App
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

// newTestApp runs in a fresh temp directory holding cover.png. Prompts
// fail unless a test swaps readPassword and interactive.
func newTestApp(t *testing.T, password string) *testApp {
	t.Helper()
	gokeyring.MockInit()
	t.Chdir(t.TempDir())

	buf := stego.NewBuffer(48, 48, imageio.Channels)
	rand.New(rand.NewSource(7)).Read(buf.Pix)
	_, err := imageio.Encode(buf, "cover.png")
	require.NoError(t, err)

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	app := &App{
		ctx: context.Background(),
		cfg: &config.Config{
			Password:      password,
			KDFIterations: 1000,
			Ledger:        core.LedgerFile,
			LogLevel:      "error",
		},
		log:         logger.Discard(),
		dir:         ".",
		stdin:       bufio.NewReader(strings.NewReader("")),
		stdout:      out,
		stderr:      errOut,
		prompter:    &core.Prompter{In: strings.NewReader(""), Out: errOut},
		interactive: func() bool { return false },
		readPassword: func(string, bool) ([]byte, error) {
			return nil, errors.New("unexpected prompt")
		},
	}
	return &testApp{App: app, out: out, errOut: errOut}
}

func (ta *testApp) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ta.out.Reset()
	err := ta.Run(append([]string{"stegvault"}, args...))
	return ta.out.String(), err
}

func TestHideReveal_Sealed(t *testing.T) {
	ta := newTestApp(t, "pw")

	out, err := ta.run(t, "hide", "-o", "secret.png", "-m", "meet at noon", "cover.png")
	require.NoError(t, err)
	assert.Equal(t, "secret.png\n", out)

	out, err = ta.run(t, "reveal", "secret.png")
	require.NoError(t, err)
	assert.Equal(t, "meet at noon", out)

	ta.cfg.Password = "wrong"
	_, err = ta.run(t, "reveal", "secret.png")
	assert.ErrorIs(t, err, core.ErrWrongPassword)

	ta.cfg.Password = ""
	_, err = ta.run(t, "reveal", "secret.png")
	assert.ErrorIs(t, err, ErrNoPassword)
}

func TestHideReveal_Plain(t *testing.T) {
	ta := newTestApp(t, "")

	_, err := ta.run(t, "hide", "--no-encrypt", "-o", "plain.jpg", "-m", "no secrets here", "cover.png")
	require.NoError(t, err)
	_, err = os.Stat("plain.jpg.png")
	require.NoError(t, err)

	out, err := ta.run(t, "reveal", "plain.jpg.png")
	require.NoError(t, err)
	assert.Equal(t, "no secrets here", out)
}

func TestHide_PayloadSources(t *testing.T) {
	ta := newTestApp(t, "pw")
	require.NoError(t, os.WriteFile("notes.txt", []byte("from a file"), 0600))
	require.NoError(t, os.WriteFile("env.txt", []byte("from PLAIN_INPUT_FILE"), 0600))

	_, err := ta.run(t, "hide", "-o", "a.png", "-f", "notes.txt", "cover.png")
	require.NoError(t, err)
	out, err := ta.run(t, "reveal", "a.png")
	require.NoError(t, err)
	assert.Equal(t, "from a file", out)

	ta.cfg.PlainInputFile = "env.txt"
	_, err = ta.run(t, "hide", "-o", "b.png", "cover.png")
	require.NoError(t, err)
	out, err = ta.run(t, "reveal", "b.png")
	require.NoError(t, err)
	assert.Equal(t, "from PLAIN_INPUT_FILE", out)

	ta.cfg.PlainInputFile = ""
	ta.stdin = bufio.NewReader(strings.NewReader("piped in"))
	_, err = ta.run(t, "hide", "-o", "c.png", "cover.png")
	require.NoError(t, err)
	out, err = ta.run(t, "reveal", "c.png")
	require.NoError(t, err)
	assert.Equal(t, "piped in", out)

	_, err = ta.run(t, "hide", "-o", "d.png", "cover.png")
	assert.ErrorIs(t, err, core.ErrNoPayload)
}

func TestHide_Usage(t *testing.T) {
	ta := newTestApp(t, "pw")

	_, err := ta.run(t, "hide", "-m", "x", "cover.png")
	assert.ErrorContains(t, err, "--output")

	_, err = ta.run(t, "hide", "-o", "x.png", "-m", "x")
	assert.Error(t, err)

	_, err = ta.run(t, "hide", "-o", "x.png", "-m", strings.Repeat("x", 2000), "cover.png")
	assert.ErrorIs(t, err, stego.ErrCapacity)
}

func TestReveal_ToFile(t *testing.T) {
	ta := newTestApp(t, "pw")
	_, err := ta.run(t, "hide", "-o", "s.png", "-m", "hidden text", "cover.png")
	require.NoError(t, err)

	out, err := ta.run(t, "reveal", "-o", "plain.txt", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "written: plain.txt\n", out)

	out, err = ta.run(t, "reveal", "-o", "plain.txt", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "unchanged: plain.txt\n", out)

	require.NoError(t, os.WriteFile("plain.txt", []byte("edited locally"), 0600))
	_, err = ta.run(t, "reveal", "-o", "plain.txt", "s.png")
	assert.Error(t, err, "non-interactive conflicts abort")

	out, err = ta.run(t, "reveal", "--keep-both", "-o", "plain.txt", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "saved copy: plain.txt"+core.RevealedSuffix+"\n", out)

	_, err = ta.run(t, "reveal", "--force", "--keep-local", "-o", "plain.txt", "s.png")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = ta.run(t, "reveal", "--force", "-o", "plain.txt", "s.png")
	require.NoError(t, err)
	data, err := os.ReadFile("plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "hidden text", string(data))
}

func TestReveal_NoHiddenData(t *testing.T) {
	ta := newTestApp(t, "")
	require.NoError(t, writeBlank("blank.png"))

	_, err := ta.run(t, "reveal", "blank.png")
	assert.ErrorIs(t, err, ErrNoHiddenData)
	assert.Contains(t, describeError(err), "does not contain hidden data")
}

func TestReveal_PasswordFromKeyring(t *testing.T) {
	ta := newTestApp(t, "pw")
	_, err := ta.run(t, "init")
	require.NoError(t, err)
	_, err = ta.run(t, "hide", "-o", "s.png", "-m", "via keyring", "cover.png")
	require.NoError(t, err)

	id := ledgerIDFromDisk(t)
	require.NoError(t, keyring.SavePassword(id, "pw"))

	ta.cfg.Password = ""
	out, err := ta.run(t, "reveal", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "via keyring", out)

	// a stale keyring entry falls back to the prompt
	require.NoError(t, keyring.SavePassword(id, "stale"))
	ta.interactive = func() bool { return true }
	ta.readPassword = func(string, bool) ([]byte, error) { return []byte("pw"), nil }
	ta.stdin = bufio.NewReader(strings.NewReader("n\n"))
	out, err = ta.run(t, "reveal", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "via keyring", out)
	assert.Contains(t, ta.errOut.String(), "Save password to keyring?")
}

func TestHide_PromptOffersKeyring(t *testing.T) {
	ta := newTestApp(t, "")
	ta.interactive = func() bool { return true }
	ta.readPassword = func(_ string, confirm bool) ([]byte, error) {
		assert.True(t, confirm)
		return []byte("typed"), nil
	}
	ta.stdin = bufio.NewReader(strings.NewReader("y\n"))

	_, err := ta.run(t, "hide", "-o", "s.png", "-m", "prompted", "cover.png")
	require.NoError(t, err)

	stored, err := keyring.GetPassword(ledgerIDFromDisk(t))
	require.NoError(t, err)
	assert.Equal(t, "typed", stored)
}

func TestCapacity(t *testing.T) {
	ta := newTestApp(t, "")

	out, err := ta.run(t, "capacity", "cover.png")
	require.NoError(t, err)
	assert.Contains(t, out, "48x48, 3 channels")
	assert.Contains(t, out, "6,912 bits")
	assert.Contains(t, out, "(859 bytes)")
	assert.Contains(t, out, "(815 bytes)")
}

func TestStatusForgetCompact(t *testing.T) {
	ta := newTestApp(t, "pw")

	out, err := ta.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No .stegvault ledger")

	_, err = ta.run(t, "hide", "-o", "one.png", "-m", "first", "cover.png")
	require.NoError(t, err)
	_, err = ta.run(t, "hide", "--no-encrypt", "-o", "two.png", "-m", "second", "cover.png")
	require.NoError(t, err)
	require.NoError(t, os.Remove("two.png"))

	out, err = ta.run(t, "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "Images: 2")
	assert.Contains(t, out, "* one.png  sealed")
	assert.Contains(t, out, "- two.png  plain")
	assert.Contains(t, out, "1 unchanged, 0 modified, 0 damaged, 1 missing")
	assert.Contains(t, out, "1,000 iterations")

	out, err = ta.run(t, "forget", "two.png")
	require.NoError(t, err)
	assert.Equal(t, "forgot: two.png\n", out)

	_, err = ta.run(t, "rm", "never.png")
	assert.ErrorIs(t, err, storage.ErrEntryNotFound)

	out, err = ta.run(t, "compact")
	require.NoError(t, err)
	assert.Contains(t, out, "Compacted:")

	out, err = ta.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Images: 1")
	assert.NotContains(t, out, "two.png")
}

func TestDiff(t *testing.T) {
	ta := newTestApp(t, "pw")
	require.NoError(t, os.WriteFile("notes.txt", []byte("line one\nline two\n"), 0600))
	_, err := ta.run(t, "hide", "-o", "s.png", "-f", "notes.txt", "cover.png")
	require.NoError(t, err)

	out, err := ta.run(t, "diff", "s.png", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt matches the payload in s.png\n", out)

	require.NoError(t, os.WriteFile("notes.txt", []byte("line one\nline 2\n"), 0600))
	out, err = ta.run(t, "diff", "s.png", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "--- image/notes.txt")
	assert.Contains(t, out, "+line 2")

	_, err = ta.run(t, "diff", "s.png")
	assert.Error(t, err)
}

func TestPasswd(t *testing.T) {
	ta := newTestApp(t, "old")
	_, err := ta.run(t, "hide", "-o", "s.png", "-m", "rotate", "cover.png")
	require.NoError(t, err)

	ta.interactive = func() bool { return true }
	ta.readPassword = func(string, bool) ([]byte, error) { return []byte("new"), nil }
	out, err := ta.run(t, "passwd", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "sealed: s.png\n", out)

	ta.cfg.Password = "new"
	out, err = ta.run(t, "reveal", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "rotate", out)

	out, err = ta.run(t, "passwd", "--no-encrypt", "-o", "open.png", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "plain: open.png\n", out)

	ta.cfg.Password = ""
	out, err = ta.run(t, "reveal", "open.png")
	require.NoError(t, err)
	assert.Equal(t, "rotate", out)
}

func TestKeyringCommands(t *testing.T) {
	ta := newTestApp(t, "pw")
	_, err := ta.run(t, "hide", "-o", "s.png", "-m", "x", "cover.png")
	require.NoError(t, err)

	out, err := ta.run(t, "keyring", "status")
	require.NoError(t, err)
	assert.Equal(t, "Password: not stored\n", out)

	ta.interactive = func() bool { return true }
	ta.readPassword = func(string, bool) ([]byte, error) { return []byte("wrong"), nil }
	_, err = ta.run(t, "keyring", "save", "s.png")
	assert.ErrorIs(t, err, core.ErrWrongPassword)

	ta.readPassword = func(string, bool) ([]byte, error) { return []byte("pw"), nil }
	out, err = ta.run(t, "keyring", "save", "s.png")
	require.NoError(t, err)
	assert.Equal(t, "Password saved to keyring\n", out)

	out, err = ta.run(t, "keyring", "status")
	require.NoError(t, err)
	assert.Equal(t, "Password: stored in keyring\n", out)

	out, err = ta.run(t, "keyring", "delete")
	require.NoError(t, err)
	assert.Equal(t, "Password removed from keyring\n", out)

	out, err = ta.run(t, "keyring", "delete")
	require.NoError(t, err)
	assert.Equal(t, "No password stored in keyring\n", out)
}

func TestInit(t *testing.T) {
	ta := newTestApp(t, "")

	out, err := ta.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized .stegvault")

	out, err = ta.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestCompletion(t *testing.T) {
	ta := newTestApp(t, "")

	for _, shell := range []string{"bash", "zsh", "fish"} {
		out, err := ta.run(t, "completion", shell)
		require.NoError(t, err)
		assert.Contains(t, out, "stegvault")
	}

	_, err := ta.run(t, "completion", "tcsh")
	assert.ErrorContains(t, err, "unknown shell")
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&stego.CapacityError{Needed: 16000, Available: 8000}, "payload does not fit"},
		{revealError(core.ErrEmptyFrame), "does not contain hidden data"},
		{revealError(&stego.CapacityError{Needed: 1 << 30, Available: 100}), "does not contain hidden data"},
		{fmt.Errorf("%w: boom", core.ErrWrongPassword), "wrong password"},
		{core.ErrPasswordRequired, "password is required"},
		{ErrNoPassword, "STEGVAULT_PASSWORD"},
		{crypto.ErrInvalidCiphertext, "too short"},
		{core.ErrNotInitialized, "no ledger"},
		{errors.New("something else"), "Error: something else"},
	}

	for _, tt := range tests {
		assert.Contains(t, describeError(tt.err), tt.want)
	}
}

func writeBlank(path string) error {
	_, err := imageio.Encode(stego.NewBuffer(16, 16, imageio.Channels), path)
	return err
}

func ledgerIDFromDisk(t *testing.T) string {
	t.Helper()
	db, err := storage.Open(core.LedgerFile)
	require.NoError(t, err)
	defer db.Close()
	id, err := db.GetLedgerID()
	require.NoError(t, err)
	return id
}
