// Package source reads geometry collections from GeoJSON files, shapefiles
// and SQL queries against PostGIS. Open is the only entry point.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/fault"
	"github.com/mohammed-shakir/water-intersect/internal/geom"
)

const (
	ExtGeoJSON   = ".geojson"
	ExtShapefile = ".shp"
	ExtSQL       = ".sql"
)

// ConnectFunc opens a database handle for a connection string.
type ConnectFunc func(ctx context.Context, dsn string) (*sql.DB, error)

// Options configures a Reader.
type Options struct {
	Logger *slog.Logger
	// ConnString is required for .sql sources.
	ConnString   string
	RingMode     geom.Mode
	WKTCacheSize int
	Connect      ConnectFunc
}

// Reader dispatches a source path to the GeoJSON, shapefile or SQL reader.
type Reader struct {
	log        *slog.Logger
	connString string
	mode       geom.Mode
	wkt        *wktCache
	connect    ConnectFunc
}

// New returns a Reader, filling defaults for unset options.
func New(opts Options) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RingMode == "" {
		opts.RingMode = geom.ModeMerge
	}
	if opts.Connect == nil {
		opts.Connect = OpenPostgres
	}
	cache, err := newWKTCache(opts.WKTCacheSize)
	if err != nil {
		return nil, fmt.Errorf("wkt cache: %w", err)
	}
	return &Reader{
		log:        opts.Logger,
		connString: strings.TrimSpace(opts.ConnString),
		mode:       opts.RingMode,
		wkt:        cache,
		connect:    opts.Connect,
	}, nil
}

// Open selects a reader by file extension and returns the geometries it holds.
func (r *Reader) Open(ctx context.Context, path string) (orb.Collection, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ExtGeoJSON:
		return r.readGeoJSON(path)
	case ExtShapefile:
		return r.readShapefile(ctx, path)
	case ExtSQL:
		return r.readSQLFile(ctx, path)
	case "":
		return nil, fault.Configf("open source", "no file extension in %q (want .geojson, .shp or .sql)", path)
	default:
		return nil, fault.Configf("open source", "unsupported file type %q in %q (want .geojson, .shp or .sql)", ext, path)
	}
}

func (r *Reader) readSQLFile(ctx context.Context, path string) (orb.Collection, error) {
	if r.connString == "" {
		return nil, fault.Configf("open source", "a connection string is required to run %q", path)
	}
	query, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.IOError("read sql file", path, err)
	}

	db, err := r.connect(ctx, r.connString)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			r.log.Warn("close database", "err", cerr)
		}
	}()

	return r.readQuery(ctx, db, string(query))
}
