// Package dataset downloads and unpacks the remote water-polygons archive.
//
// All file names derive from the coordinate system identifier, so cleanup can
// run from any goroutine knowing only the root directory and the identifier.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

type State int32

const (
	Idle State = iota
	Downloading
	Extracting
	Locating
	Ready
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Downloading:
		return "downloading"
	case Extracting:
		return "extracting"
	case Locating:
		return "locating"
	case Ready:
		return "ready"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultCRS is used for identifiers that have no URL of their own.
const DefaultCRS = "4326"

var crsPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ReadFunc loads the located dataset file.
type ReadFunc func(ctx context.Context, path string) (orb.Collection, error)

type Options struct {
	Logger *slog.Logger
	// Root is where archives are written; defaults to the working directory.
	Root   string
	Client *http.Client
	// URLs maps coordinate system identifiers to archive URLs; it must
	// contain DefaultCRS.
	URLs map[string]string
}

type Acquirer struct {
	log    *slog.Logger
	root   string
	client *http.Client
	urls   map[string]string
	state  atomic.Int32
}

func New(opts Options) (*Acquirer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fault.IOError("resolve working directory", "", err)
		}
		opts.Root = wd
	}
	if opts.URLs[DefaultCRS] == "" {
		return nil, fault.Configf("dataset", "no archive url configured for default crs %s", DefaultCRS)
	}
	return &Acquirer{
		log:    opts.Logger,
		root:   opts.Root,
		client: opts.Client,
		urls:   opts.URLs,
	}, nil
}

func (a *Acquirer) Root() string { return a.root }

func (a *Acquirer) State() State { return State(a.state.Load()) }

// Cancel marks the acquirer as cancelled; further stage transitions are ignored.
func (a *Acquirer) Cancel() { a.state.Store(int32(Cancelled)) }

func (a *Acquirer) enter(s State) error {
	for {
		cur := a.state.Load()
		if State(cur) == Cancelled {
			return fault.IOError("dataset", "", errors.New("acquisition cancelled"))
		}
		if a.state.CompareAndSwap(cur, int32(s)) {
			return nil
		}
	}
}

// URL returns the archive URL for an identifier, falling back to DefaultCRS.
func (a *Acquirer) URL(crs string) string {
	if u, ok := a.urls[crs]; ok && u != "" {
		return u
	}
	return a.urls[DefaultCRS]
}

func BaseName(crs string) string { return "water-polygons-split-" + crs }

func ArchivePath(root, crs string) string { return filepath.Join(root, BaseName(crs)+".zip") }

func ExtractDir(root, crs string) string { return filepath.Join(root, BaseName(crs)) }

func checkCRS(crs string) error {
	if !crsPattern.MatchString(crs) {
		return fault.Configf("dataset", "invalid coordinate system identifier %q", crs)
	}
	return nil
}

// Download streams the archive for crs to its deterministic path and returns
// that path. A partial file is removed on failure.
func (a *Acquirer) Download(ctx context.Context, crs string) (path string, err error) {
	if err := checkCRS(crs); err != nil {
		return "", err
	}
	if err := a.enter(Downloading); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { observability.ObserveStage("download", err, time.Since(start).Seconds()) }()

	url := a.URL(crs)
	path = ArchivePath(a.root, crs)
	a.log.InfoContext(ctx, "downloading water dataset", "url", url, "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fault.IOError("build request", url, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fault.IOError("download", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fault.IOError("download", url, fmt.Errorf("unexpected status %s", resp.Status))
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fault.IOError("create archive", path, err)
	}
	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	observability.AddDownloadBytes(crs, n)
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fault.IOError("write archive", path, err)
	}

	a.log.InfoContext(ctx, "download complete", "bytes", n, "elapsed", time.Since(start))
	return path, nil
}

// Extract unpacks the archive next to itself.
func (a *Acquirer) Extract(ctx context.Context, archive string) (dir string, err error) {
	if err := a.enter(Extracting); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { observability.ObserveStage("extract", err, time.Since(start).Seconds()) }()

	dir, err = Extract(archive)
	if err != nil {
		return "", err
	}
	a.log.DebugContext(ctx, "archive extracted", "dir", dir)
	return dir, nil
}

// Locate finds the shapefile inside an extracted directory.
func (a *Acquirer) Locate(ctx context.Context, dir string) (string, error) {
	if err := a.enter(Locating); err != nil {
		return "", err
	}
	path, err := Locate(dir, ".shp")
	if err != nil {
		return "", err
	}
	a.log.DebugContext(ctx, "dataset located", "path", path)
	return path, nil
}

// DownloadUnzipRead downloads, extracts and locates the dataset for crs and
// reads it with read.
func (a *Acquirer) DownloadUnzipRead(ctx context.Context, crs string, read ReadFunc) (orb.Collection, error) {
	archive, err := a.Download(ctx, crs)
	if err != nil {
		return nil, err
	}
	dir, err := a.Extract(ctx, archive)
	if err != nil {
		return nil, err
	}
	path, err := a.Locate(ctx, dir)
	if err != nil {
		return nil, err
	}
	c, err := read(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := a.enter(Ready); err != nil {
		return nil, err
	}
	return c, nil
}

// Cleanup removes this acquirer's archive and extraction for crs.
func (a *Acquirer) Cleanup(crs string) error {
	return Cleanup(a.root, crs)
}

// Cleanup removes the extracted directory and the archive for crs under root.
// Missing files are not an error, so it is safe to call at any point and more
// than once.
func Cleanup(root, crs string) error {
	if err := checkCRS(crs); err != nil {
		return err
	}
	var errs []error
	if err := os.RemoveAll(ExtractDir(root, crs)); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(ArchivePath(root, crs)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fault.IOError("cleanup dataset", ExtractDir(root, crs), err)
	}
	return nil
}
