package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/illarion/stegvault/internal/crypto"
	"github.com/illarion/stegvault/internal/git"
	"github.com/illarion/stegvault/internal/imageio"
	"github.com/illarion/stegvault/internal/logger"
	"github.com/illarion/stegvault/internal/security"
	"github.com/illarion/stegvault/internal/stego"
	"github.com/illarion/stegvault/internal/storage"
)

const (
	LedgerFile     = ".stegvault"
	DirPermSecure  = 0700
	FilePermSecure = 0600
	MaxImageCopies = 100 // numbered .from-image.N copies
)

var (
	ErrNotInitialized = errors.New("no ledger in this directory")
	ErrNoPayload      = errors.New("nothing to hide")
)

// Options configures a Stegvault handle
type Options struct {
	Ledger        string // ledger file name, relative to the workspace
	NoLedger      bool   // do not record hidden images
	ConfineWrites bool   // refuse to write revealed files outside the workspace
	Envelope      *crypto.Envelope
	Logger        logger.Logger
	Prompter      *Prompter
}

// Stegvault hides payloads in images under one workspace directory and
// keeps a ledger of what it produced.
type Stegvault struct {
	dir        string
	ledgerPath string
	ledgerName string
	opts       Options
	env        *crypto.Envelope
	log        logger.Logger
	validator  *security.PathValidator
}

// New opens a handle on the workspace at dir
func New(dir string, opts Options) (*Stegvault, error) {
	validator, err := security.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}

	if opts.Ledger == "" {
		opts.Ledger = LedgerFile
	}
	ledgerName, err := validator.Normalize(opts.Ledger)
	if err != nil {
		validator.Close()
		return nil, fmt.Errorf("invalid ledger path: %w", err)
	}
	if opts.Envelope == nil {
		opts.Envelope = crypto.NewEnvelope()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Prompter == nil {
		opts.Prompter = terminal
	}

	return &Stegvault{
		dir:        validator.Dir(),
		ledgerPath: filepath.Join(validator.Dir(), filepath.FromSlash(ledgerName)),
		ledgerName: ledgerName,
		opts:       opts,
		env:        opts.Envelope,
		log:        opts.Logger,
		validator:  validator,
	}, nil
}

// Close releases resources held by the handle
func (s *Stegvault) Close() error {
	if s.validator != nil {
		return s.validator.Close()
	}
	return nil
}

// LedgerPath returns the absolute ledger location
func (s *Stegvault) LedgerPath() string {
	return s.ledgerPath
}

// Envelope returns the crypto envelope used for sealing
func (s *Stegvault) Envelope() *crypto.Envelope {
	return s.env
}

// openLedger opens the ledger. Without create a missing ledger is
// ErrNotInitialized.
func (s *Stegvault) openLedger(create bool) (*storage.Storage, error) {
	if !create {
		if _, err := os.Stat(s.ledgerPath); err != nil {
			return nil, ErrNotInitialized
		}
	}
	db, err := storage.Open(s.ledgerPath)
	if err != nil {
		return nil, err
	}
	if create {
		if err := db.Initialize(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize ledger: %w", err)
		}
	}
	return db, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HideRequest describes one hide operation
type HideRequest struct {
	Input    string // cover image
	Output   string // requested output; lossy extensions get .png appended
	Payload  []byte
	Source   string // file the payload came from, if any
	Password []byte // empty means plain mode
}

// HideReport is the result of Hide
type HideReport struct {
	HideResult
	Output   string
	Recorded bool
}

// Hide embeds req.Payload into req.Input and writes the result. The
// output is recorded in the ledger when it lies inside the workspace.
func (s *Stegvault) Hide(ctx context.Context, req HideRequest) (*HideReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Output == "" {
		return nil, fmt.Errorf("no output path")
	}

	buf, err := imageio.Decode(req.Input)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("decoded %s: %dx%d, %d bits of capacity", req.Input, buf.Width, buf.Height, buf.CapacityBits())

	res, err := HideBuffer(buf, req.Payload, req.Password, s.env)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	written, err := imageio.Encode(buf, req.Output)
	if err != nil {
		return nil, err
	}
	if written != req.Output {
		s.log.Warnf("%s is not a lossless format, wrote %s instead", req.Output, written)
	}
	s.log.Infof("hid %d bytes (%s) in %s using %d of %d bits", res.PayloadBytes, res.Mode, written, res.NeededBits, res.CapacityBits)

	report := &HideReport{HideResult: *res, Output: written}
	if s.opts.NoLedger {
		return report, nil
	}

	recorded, err := s.record(written, req.Source, res)
	if err != nil {
		return report, fmt.Errorf("image written but ledger update failed: %w", err)
	}
	report.Recorded = recorded
	return report, nil
}

func (s *Stegvault) record(written, source string, res *HideResult) (bool, error) {
	absOut, err := filepath.Abs(written)
	if err != nil {
		return false, err
	}
	image, err := s.validator.Normalize(absOut)
	if err != nil {
		s.log.Debugf("not recording %s: %v", written, err)
		return false, nil
	}

	entry := storage.Entry{
		Image:        image,
		Mode:         res.Mode.String(),
		PayloadSize:  int64(res.PayloadBytes),
		StreamBytes:  int64(res.StreamBytes),
		CapacityBits: res.CapacityBits,
		StreamHash:   res.StreamHash,
		Created:      time.Now(),
	}
	if source != "" {
		if absSrc, err := filepath.Abs(source); err == nil {
			if rel, err := s.validator.Normalize(absSrc); err == nil {
				entry.Source = rel
			}
		}
	}
	if entry.ImageHash, err = hashFile(absOut); err != nil {
		return false, err
	}

	db, err := s.openLedger(true)
	if err != nil {
		return false, err
	}
	defer db.Close()

	if err := db.PutEntry(entry); err != nil {
		return false, err
	}
	if res.Mode == ModeSealed {
		if err := db.SetIterations(uint32(s.env.Iterations())); err != nil {
			return false, err
		}
	}
	if err := db.UpdateModified(); err != nil {
		return false, err
	}
	return true, nil
}

// Reveal decodes input and recovers its hidden payload
func (s *Stegvault) Reveal(ctx context.Context, input string, password []byte, opts RevealOptions) (*RevealResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := imageio.Decode(input)
	if err != nil {
		return nil, err
	}
	if opts.Envelope == nil {
		opts.Envelope = s.env
	}
	res, err := RevealBuffer(buf, password, opts)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("revealed %d bytes (%s) from %s", len(res.Payload), res.Mode, input)
	return res, nil
}

// Reseal re-embeds the payload hidden in image under newPassword, or in
// plain form when newPassword is empty, and writes it to output (image
// itself when output is empty). The recorded source carries over.
func (s *Stegvault) Reseal(ctx context.Context, image, output string, oldPassword, newPassword []byte, opts RevealOptions) (*HideReport, error) {
	res, err := s.Reveal(ctx, image, oldPassword, opts)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(res.Payload)

	if output == "" {
		output = image
	}
	return s.Hide(ctx, HideRequest{
		Input:    image,
		Output:   output,
		Payload:  res.Payload,
		Source:   s.recordedSource(image),
		Password: newPassword,
	})
}

// recordedSource returns the absolute source path the ledger holds for
// image, or "" when there is none.
func (s *Stegvault) recordedSource(image string) string {
	abs, err := filepath.Abs(image)
	if err != nil {
		return ""
	}
	key, err := s.validator.Normalize(abs)
	if err != nil {
		return ""
	}
	db, err := s.openLedger(false)
	if err != nil {
		return ""
	}
	defer db.Close()

	entry, err := db.GetEntry(key)
	if err != nil || entry.Source == "" {
		return ""
	}
	src, err := s.validator.Abs(entry.Source)
	if err != nil {
		return ""
	}
	return src
}

// Write actions reported by WriteRevealed
const (
	ActionWritten   = "written"
	ActionUnchanged = "unchanged"
	ActionKeptLocal = "kept local"
	ActionMerged    = "merged"
	ActionSavedCopy = "saved copy"
	ActionSkipped   = "skipped"
)

// WriteResult reports where a revealed payload went
type WriteResult struct {
	Path   string
	Action string
}

// WriteRevealed writes data to out. When out already exists with other
// content the conflict is resolved with strategy.
func (s *Stegvault) WriteRevealed(ctx context.Context, out string, data []byte, strategy MergeStrategy) (*WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	local, err := os.ReadFile(out)
	switch {
	case os.IsNotExist(err):
		if err := s.writeFile(out, data); err != nil {
			return nil, err
		}
		return &WriteResult{Path: out, Action: ActionWritten}, nil
	case err != nil:
		return nil, fmt.Errorf("cannot read %s: %w", out, err)
	}
	defer crypto.ClearBytes(local)

	if CompareFiles(local, data) {
		return &WriteResult{Path: out, Action: ActionUnchanged}, nil
	}

	conflict, err := s.opts.Prompter.HandleConflict(out, local, data, strategy)
	if err != nil {
		return nil, err
	}

	switch conflict.Resolution {
	case ResolutionKeepLocal:
		return &WriteResult{Path: out, Action: ActionKeptLocal}, nil
	case ResolutionSkip:
		return &WriteResult{Path: out, Action: ActionSkipped}, nil
	case ResolutionEditMerged:
		defer crypto.ClearBytes(conflict.MergedData)
		if err := s.writeFile(out, conflict.MergedData); err != nil {
			return nil, err
		}
		return &WriteResult{Path: out, Action: ActionMerged}, nil
	case ResolutionKeepBoth:
		copyPath, err := freeCopyPath(out)
		if err != nil {
			return nil, err
		}
		if err := s.writeFile(copyPath, data); err != nil {
			return nil, err
		}
		return &WriteResult{Path: copyPath, Action: ActionSavedCopy}, nil
	default:
		if err := s.writeFile(out, data); err != nil {
			return nil, err
		}
		return &WriteResult{Path: out, Action: ActionWritten}, nil
	}
}

// freeCopyPath picks path.from-image, then path.from-image.N
func freeCopyPath(path string) (string, error) {
	candidate := path + RevealedSuffix
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		if i >= MaxImageCopies {
			return "", fmt.Errorf("%s: too many copies (max %d)", path, MaxImageCopies)
		}
		candidate = fmt.Sprintf("%s%s.%d", path, RevealedSuffix, i)
	}
}

// writeFile writes revealed data with owner-only permissions. Paths inside
// the workspace go through os.Root; others are refused when ConfineWrites
// is set.
func (s *Stegvault) writeFile(path string, data []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := s.validator.Normalize(abs)
	if err == nil {
		return s.validator.WriteFileInRoot(rel, data, FilePermSecure)
	}
	if s.opts.ConfineWrites {
		return fmt.Errorf("refusing to write %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), DirPermSecure); err != nil {
		return err
	}
	return os.WriteFile(abs, data, FilePermSecure)
}

// CapacityInfo describes how much an image can hold
type CapacityInfo struct {
	Width    int
	Height   int
	Channels int
	Room
}

// Capacity reports the room available in input
func (s *Stegvault) Capacity(ctx context.Context, input string) (*CapacityInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	buf, err := imageio.Decode(input)
	if err != nil {
		return nil, err
	}
	return &CapacityInfo{
		Width:    buf.Width,
		Height:   buf.Height,
		Channels: buf.Channels,
		Room:     RoomFor(buf),
	}, nil
}

// Image states reported by Status
const (
	StatusUnchanged = "unchanged"
	StatusModified  = "modified (payload intact)"
	StatusDamaged   = "damaged"
	StatusMissing   = "missing"
	StatusError     = "error"
)

// ImageStatus is the state of one ledger entry
type ImageStatus struct {
	Path        string
	Source      string
	Mode        string
	PayloadSize int64
	Created     time.Time
	Status      string
}

// StatusInfo summarizes the ledger
type StatusInfo struct {
	Images         []ImageStatus
	LastHidden     time.Time
	LedgerID       string
	KDFIterations  uint32
	Algorithm      string
	TotalPayload   int64
	UnchangedCount int
	ModifiedCount  int
	DamagedCount   int
	MissingCount   int
	Exposure       *git.Exposure
}

// Status checks every recorded image. No password is needed: an image
// whose file hash changed is re-extracted and its stream hash compared.
func (s *Stegvault) Status(ctx context.Context) (*StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := s.openLedger(false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	info := &StatusInfo{Algorithm: "AES-256-GCM, PBKDF2-HMAC-SHA256"}
	info.LastHidden, _ = db.GetModified()
	info.KDFIterations, _ = db.GetIterations()
	info.LedgerID, _ = db.GetLedgerID()

	entries, err := db.GetEntries()
	if err != nil {
		return nil, err
	}

	var sources []string
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := s.validator.ValidateExistingPath(entry.Image); err != nil {
			s.log.Warnf("skipping ledger entry with invalid path %q: %v", entry.Image, err)
			continue
		}

		st := ImageStatus{
			Path:        entry.Image,
			Source:      entry.Source,
			Mode:        entry.Mode,
			PayloadSize: entry.PayloadSize,
			Created:     entry.Created,
			Status:      s.checkImage(entry),
		}
		switch st.Status {
		case StatusUnchanged:
			info.UnchangedCount++
		case StatusModified:
			info.ModifiedCount++
		case StatusDamaged:
			info.DamagedCount++
		case StatusMissing:
			info.MissingCount++
		}
		info.TotalPayload += entry.PayloadSize
		info.Images = append(info.Images, st)
		if entry.Source != "" {
			sources = append(sources, entry.Source)
		}
	}

	exp, err := git.CheckPayloadExposure(ctx, s.dir, s.ledgerName, sources)
	if err == nil && exp.IsRepo {
		info.Exposure = exp
	}

	return info, nil
}

func (s *Stegvault) checkImage(entry storage.Entry) string {
	abs, err := s.validator.Abs(entry.Image)
	if err != nil {
		return StatusError
	}
	if _, err := s.validator.StatInRoot(entry.Image); err != nil {
		if os.IsNotExist(err) {
			return StatusMissing
		}
		return StatusError
	}

	hash, err := hashFile(abs)
	if err != nil {
		return StatusError
	}
	if hash == entry.ImageHash {
		return StatusUnchanged
	}

	f, err := s.validator.OpenInRoot(entry.Image)
	if err != nil {
		return StatusError
	}
	defer f.Close()
	buf, _, err := imageio.DecodeReader(f)
	if err != nil {
		return StatusDamaged
	}
	stream, err := stego.Extract(buf)
	if err != nil || StreamHash(stream) != entry.StreamHash {
		return StatusDamaged
	}
	return StatusModified
}

// Diff shows how the local file differs from the payload hidden in image
func (s *Stegvault) Diff(ctx context.Context, image, file string, password []byte, opts RevealOptions) (string, error) {
	res, err := s.Reveal(ctx, image, password, opts)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(res.Payload)

	local, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	defer crypto.ClearBytes(local)

	return GenerateUnifiedDiff(file, res.Payload, local)
}

// Forget removes images from the ledger without touching the files.
// Paths that are not recorded are reported in the returned error.
func (s *Stegvault) Forget(ctx context.Context, paths []string) ([]string, error) {
	db, err := s.openLedger(false)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var removed []string
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		image, err := s.validator.Normalize(abs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		if err := db.RemoveEntry(image); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, image)
	}
	if len(removed) > 0 {
		if err := db.UpdateModified(); err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// Compact rewrites the ledger file to reclaim space
func (s *Stegvault) Compact() error {
	db, err := s.openLedger(false)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Compact()
}

// GetLedgerID returns the ID that keys the stored password
func (s *Stegvault) GetLedgerID() (string, error) {
	db, err := s.openLedger(false)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetLedgerID()
}

// GetOrCreateLedgerID returns the ledger ID, creating the ledger if needed
func (s *Stegvault) GetOrCreateLedgerID() (string, error) {
	db, err := s.openLedger(true)
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetOrCreateLedgerID()
}
