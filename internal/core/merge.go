package core

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/term"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text files
	RevealedSuffix     = ".from-image"
)

// MergeStrategy decides what happens when a revealed payload would
// replace an existing, different file.
type MergeStrategy int

const (
	StrategyAsk       MergeStrategy = iota // prompt on the terminal
	StrategyKeepLocal                      // leave the file alone
	StrategyOverwrite                      // replace it with the payload
	StrategyKeepBoth                       // write the payload next to it as .from-image
	StrategyAbort                          // fail
)

// ConflictResolution is the outcome chosen for one conflict
type ConflictResolution int

const (
	ResolutionKeepLocal ConflictResolution = iota
	ResolutionOverwrite
	ResolutionEditMerged
	ResolutionKeepBoth
	ResolutionSkip
)

// ConflictResult contains the resolution and optionally merged data
type ConflictResult struct {
	Resolution ConflictResolution
	MergedData []byte // set for ResolutionEditMerged
}

// Prompter reads conflict choices. The default talks to the terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	lines *bufio.Reader
}

var terminal = &Prompter{In: os.Stdin, Out: os.Stderr}

// DetectFileType reports whether data looks like text: no NUL bytes,
// valid UTF-8, and at most BinaryThresholdPct control characters in the
// first BinarySampleSize bytes.
func DetectFileType(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data
	if len(sample) > BinarySampleSize {
		sample = sample[:BinarySampleSize]
	}

	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		if (b < 32 && b != '\t' && b != '\n' && b != '\r') || b == 127 {
			nonPrintable++
		}
	}

	return nonPrintable <= len(sample)*BinaryThresholdPct/100
}

// CompareFiles reports whether two contents have the same sha256
func CompareFiles(local, revealed []byte) bool {
	a := sha256.Sum256(local)
	b := sha256.Sum256(revealed)
	return bytes.Equal(a[:], b[:])
}

// HandleConflict resolves one conflict according to strategy, prompting
// on the terminal for StrategyAsk.
func HandleConflict(path string, localData, revealed []byte, strategy MergeStrategy) (*ConflictResult, error) {
	return terminal.HandleConflict(path, localData, revealed, strategy)
}

// HandleConflict resolves one conflict, reading choices from p.In
func (p *Prompter) HandleConflict(path string, localData, revealed []byte, strategy MergeStrategy) (*ConflictResult, error) {
	switch strategy {
	case StrategyKeepLocal:
		return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
	case StrategyOverwrite:
		return &ConflictResult{Resolution: ResolutionOverwrite}, nil
	case StrategyKeepBoth:
		return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
	case StrategyAbort:
		return &ConflictResult{Resolution: ResolutionSkip}, fmt.Errorf("%s exists and differs from the hidden payload", path)
	}

	isText := DetectFileType(localData) && DetectFileType(revealed)

	fmt.Fprintf(p.Out, "\nwarning: %s already exists and differs from the hidden payload\n", path)
	if isText {
		fmt.Fprintf(p.Out, "   both versions are text\n")
	} else {
		fmt.Fprintf(p.Out, "   at least one version is binary\n")
	}
	fmt.Fprintf(p.Out, "\nOptions:\n")
	fmt.Fprintf(p.Out, "  [l] Keep local file\n")
	fmt.Fprintf(p.Out, "  [o] Overwrite with payload\n")
	if isText {
		fmt.Fprintf(p.Out, "  [e] Edit merged (opens in $EDITOR)\n")
	}
	fmt.Fprintf(p.Out, "  [b] Keep both (save payload as %s)\n", RevealedSuffix)
	fmt.Fprintf(p.Out, "  [x] Skip\n")

	for {
		fmt.Fprintf(p.Out, "\nYour choice: ")
		choice, err := p.readChoice()
		if err != nil {
			return &ConflictResult{Resolution: ResolutionSkip}, err
		}

		switch choice {
		case "l":
			return &ConflictResult{Resolution: ResolutionKeepLocal}, nil
		case "o":
			return &ConflictResult{Resolution: ResolutionOverwrite}, nil
		case "e":
			if !isText {
				fmt.Fprintf(p.Out, "Cannot edit merge for binary files\n")
				continue
			}
			merged, err := p.handleEditMerge(path, localData, revealed)
			if err != nil {
				fmt.Fprintf(p.Out, "Error during merge: %v\n", err)
				continue
			}
			return &ConflictResult{Resolution: ResolutionEditMerged, MergedData: merged}, nil
		case "b":
			return &ConflictResult{Resolution: ResolutionKeepBoth}, nil
		case "x":
			return &ConflictResult{Resolution: ResolutionSkip}, nil
		default:
			if isText {
				fmt.Fprintf(p.Out, "Invalid choice. Please enter l, o, e, b or x\n")
			} else {
				fmt.Fprintf(p.Out, "Invalid choice. Please enter l, o, b or x\n")
			}
		}
	}
}

// readChoice reads one key in raw mode when In is a terminal, otherwise
// one line.
func (p *Prompter) readChoice() (string, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err == nil {
			defer func() { _ = term.Restore(int(f.Fd()), oldState) }()
			buf := make([]byte, 1)
			if _, err := f.Read(buf); err != nil {
				return "", err
			}
			choice := strings.ToLower(string(buf[0]))
			fmt.Fprintf(p.Out, "%s\r\n", choice)
			return choice, nil
		}
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.In)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

func getEditor() string {
	if editor := os.Getenv("VISUAL"); editor != "" {
		return editor
	}
	if editor := os.Getenv("EDITOR"); editor != "" {
		return editor
	}
	if runtime.GOOS == "windows" {
		return "notepad"
	}
	return "vi"
}

// lineDiffs runs a line-mode diff of a against b
func lineDiffs(a, b string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

// createLineDiff marks only the differing lines of local and revealed
// with git-style conflict markers.
func createLineDiff(localData, revealed []byte) []byte {
	return buildConflictFromDiffs(lineDiffs(string(localData), string(revealed)))
}

func writeHunkSide(buf *bytes.Buffer, diffs []diffmatchpatch.Diff, i int, op diffmatchpatch.Operation) int {
	for i < len(diffs) && diffs[i].Type == op {
		text := diffs[i].Text
		buf.WriteString(text)
		if text != "" && !strings.HasSuffix(text, "\n") {
			buf.WriteByte('\n')
		}
		i++
	}
	return i
}

func buildConflictFromDiffs(diffs []diffmatchpatch.Diff) []byte {
	var buf bytes.Buffer

	for i := 0; i < len(diffs); {
		if diffs[i].Type == diffmatchpatch.DiffEqual {
			buf.WriteString(diffs[i].Text)
			i++
			continue
		}
		buf.WriteString("<<<<<<< local\n")
		i = writeHunkSide(&buf, diffs, i, diffmatchpatch.DiffDelete)
		buf.WriteString("=======\n")
		i = writeHunkSide(&buf, diffs, i, diffmatchpatch.DiffInsert)
		buf.WriteString(">>>>>>> image\n")
	}

	return buf.Bytes()
}

// createConflictFile writes the conflict-marked merge to a private temp
// file that keeps the extension of path.
func createConflictFile(path string, localData, revealed []byte) (string, error) {
	tmpFile, err := os.CreateTemp("", "stegvault-merge-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()
	fail := func(err error) (string, error) {
		tmpFile.Close()
		os.Remove(name)
		return "", err
	}

	if err := tmpFile.Chmod(FilePermSecure); err != nil {
		return fail(fmt.Errorf("failed to set temp file permissions: %w", err))
	}
	if _, err := tmpFile.Write(createLineDiff(localData, revealed)); err != nil {
		return fail(fmt.Errorf("failed to write conflict content: %w", err))
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}

func invokeEditor(filename string) error {
	editor := getEditor()
	if _, err := exec.LookPath(editor); err != nil {
		return fmt.Errorf("editor '%s' not found: %w\nPlease set VISUAL or EDITOR environment variable", editor, err)
	}

	cmd := exec.Command(editor, filename)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("editor exited with code %d", exitErr.ExitCode())
		}
		return err
	}
	return nil
}

func (p *Prompter) handleEditMerge(path string, localData, revealed []byte) ([]byte, error) {
	name, err := createConflictFile(path, localData, revealed)
	if err != nil {
		return nil, err
	}
	defer os.Remove(name)

	fmt.Fprintf(p.Out, "\nopening editor for merge...\n")
	if err := invokeEditor(name); err != nil {
		return nil, err
	}

	merged, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read edited file: %w", err)
	}

	if len(merged) == 0 && !p.confirm("edited file is empty. Use this empty content?") {
		return nil, fmt.Errorf("merge aborted by user")
	}
	if hasConflictMarkers(merged) && !p.confirm("conflict markers still present. Continue anyway?") {
		return nil, fmt.Errorf("merge aborted by user")
	}

	return merged, nil
}

func (p *Prompter) confirm(question string) bool {
	fmt.Fprintf(p.Out, "\nwarning: %s [y/N]: ", question)
	choice, err := p.readChoice()
	return err == nil && choice == "y"
}

func hasConflictMarkers(data []byte) bool {
	return bytes.Contains(data, []byte("<<<<<<<")) ||
		bytes.Contains(data, []byte("=======")) ||
		bytes.Contains(data, []byte(">>>>>>>"))
}

// GenerateUnifiedDiff renders a diff from the hidden payload to the local
// file. It returns "" when they are identical.
func GenerateUnifiedDiff(path string, revealed, localData []byte) (string, error) {
	if CompareFiles(revealed, localData) {
		return "", nil
	}

	if !DetectFileType(revealed) || !DetectFileType(localData) {
		return fmt.Sprintf("Binary file %s differs from hidden payload\n", path), nil
	}

	dmp := diffmatchpatch.New()
	hidden := string(revealed)
	patches := dmp.PatchMake(hidden, lineDiffs(hidden, string(localData)))
	if len(patches) == 0 {
		return "", nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "--- image/%s\n", filepath.ToSlash(path))
	fmt.Fprintf(&result, "+++ local/%s\n", filepath.ToSlash(path))
	result.WriteString(dmp.PatchToText(patches))

	return result.String(), nil
}
