// Package processor turns decoded requests into directory lifecycle effects.
//
// A Processor creates and removes directories, records created directories
// in the key-value store and announces deletions on the event bus. Every
// request yields exactly one Outcome whose Message is the response text;
// Process never returns an error and never panics on client input.
package processor

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/marmos91/atlasfs/internal/logger"
	"github.com/marmos91/atlasfs/internal/protocol/command"
	"github.com/spf13/afero"
)

// DefaultMarker is the value stored for every created directory.
const DefaultMarker = "created"

// DefaultDirMode is the permission used for new directories.
const DefaultDirMode os.FileMode = 0o755

// Recorder persists the marker for created directories.
type Recorder interface {
	Put(ctx context.Context, key, value []byte) error
}

// Publisher broadcasts lifecycle events.
type Publisher interface {
	Publish(event string) int
}

// Options tunes a Processor. Zero values select defaults.
type Options struct {
	DirMode os.FileMode
	Marker  string
	Logger  *logger.Logger
}

// Processor executes requests. Safe for concurrent use as long as the
// filesystem, recorder and publisher are.
type Processor struct {
	fs      afero.Fs
	store   Recorder
	bus     Publisher
	dirMode os.FileMode
	marker  []byte
	log     *logger.Logger
}

// New creates a Processor operating on fs.
func New(fs afero.Fs, store Recorder, bus Publisher, opts Options) *Processor {
	if opts.DirMode == 0 {
		opts.DirMode = DefaultDirMode
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Processor{
		fs:      fs,
		store:   store,
		bus:     bus,
		dirMode: opts.DirMode,
		marker:  []byte(opts.Marker),
		log:     opts.Logger,
	}
}

// NewFs returns the filesystem commands operate on. An empty root or "."
// resolves subjects against the working directory; any other root confines
// them beneath it.
func NewFs(root string) afero.Fs {
	if root == "" || root == "." {
		return afero.NewOsFs()
	}
	return afero.NewBasePathFs(afero.NewOsFs(), root)
}

// Process handles req and returns its outcome.
func (p *Processor) Process(ctx context.Context, req *command.Request) Outcome {
	switch {
	case req.Operation == command.OpCreate:
		return p.create(ctx, req)
	case req.Operation == command.OpDelete:
		return p.delete(req)
	case req.Operation.Reserved():
		return Outcome{Kind: OutcomeNotImplemented, Message: req.Operation.String()}
	default:
		p.log.Debug("Unrecognized opcode %d", int32(req.Operation))
		return Outcome{Kind: OutcomeUnrecognized, Message: "error"}
	}
}

func (p *Processor) subject(req *command.Request) (string, *Outcome) {
	fsid, err := req.SubjectString()
	if err != nil {
		msg := fmt.Sprintf("Invalid encoding in subject: %v", err)
		p.log.Error("%s", msg)
		return "", &Outcome{Kind: OutcomeInvalidEncoding, Message: msg, Err: err}
	}
	return fsid, nil
}

func (p *Processor) create(ctx context.Context, req *command.Request) Outcome {
	fsid, bad := p.subject(req)
	if bad != nil {
		return *bad
	}

	if err := p.fs.Mkdir(fsid, p.dirMode); err != nil {
		msg := fmt.Sprintf("Error creating directory '%s': %v", fsid, err)
		p.log.Error("%s", msg)
		return Outcome{Kind: OutcomeFailure, Message: msg, Err: err}
	}

	msg := fmt.Sprintf("Directory '%s' created", fsid)
	p.log.Info("%s", msg)

	// The directory stays even if the marker cannot be written.
	if err := p.store.Put(ctx, req.Subject, p.marker); err != nil {
		p.log.Error("Failed to record directory '%s' in store: %v", fsid, err)
	}

	return Outcome{Kind: OutcomeSuccess, Message: msg}
}

func (p *Processor) delete(req *command.Request) Outcome {
	fsid, bad := p.subject(req)
	if bad != nil {
		return *bad
	}

	if err := p.removeDir(fsid); err != nil {
		msg := fmt.Sprintf("Error deleting directory '%s': %v", fsid, err)
		p.log.Error("%s", msg)
		return Outcome{Kind: OutcomeFailure, Message: msg, Err: err}
	}

	msg := fmt.Sprintf("Directory '%s' deleted", fsid)
	p.log.Info("%s", msg)

	receivers := p.bus.Publish(msg)
	p.log.Debug("Published deletion of '%s' to %d subscriber(s)", fsid, receivers)

	return Outcome{Kind: OutcomeSuccess, Message: msg}
}

// removeDir removes an existing directory and everything below it.
// RemoveAll alone succeeds on missing paths and removes plain files, so the
// target is checked first.
func (p *Processor) removeDir(path string) error {
	info, err := p.fs.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "remove", Path: path, Err: syscall.ENOTDIR}
	}
	return p.fs.RemoveAll(path)
}
