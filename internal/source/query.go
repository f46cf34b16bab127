package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/water-intersect/internal/core/observability"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
)

// GeomColumn is the result column expected to hold WKT, EWKT or GeoJSON text.
const GeomColumn = "geom"

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// readQuery runs the query and parses the geom column of every row. NULL and
// unparseable values are skipped.
func (r *Reader) readQuery(ctx context.Context, q querier, query string) (orb.Collection, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fault.RemoteError("run query", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fault.RemoteError("read columns", err)
	}
	idx := -1
	for i, c := range cols {
		if strings.EqualFold(c, GeomColumn) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fault.RemoteError("read columns", fmt.Errorf("result has no %q column (got %v)", GeomColumn, cols))
	}

	var text sql.NullString
	dest := make([]any, len(cols))
	for i := range dest {
		if i == idx {
			dest[i] = &text
		} else {
			dest[i] = new(any)
		}
	}

	out := orb.Collection{}
	skipped := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fault.RemoteError("scan row", err)
		}
		if !text.Valid {
			skipped++
			continue
		}
		g, err := r.wkt.parse(text.String)
		if err != nil {
			skipped++
			r.log.DebugContext(ctx, "skipping unparseable wkt row", "row", len(out)+skipped, "err", err)
			continue
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.RemoteError("iterate rows", err)
	}

	observability.AddSourceRecords("sql", "ok", len(out))
	observability.AddSourceRecords("sql", "skipped", skipped)
	if skipped > 0 {
		r.log.WarnContext(ctx, "query rows skipped", "skipped", skipped, "kept", len(out))
	}
	return out, nil
}

// wktCache memoises parsed WKT; queries over joined tables tend to repeat the
// same target geometry on many rows.
type wktCache struct {
	lru *lru.Cache[uint64, orb.Geometry]
}

func newWKTCache(size int) (*wktCache, error) {
	if size <= 0 {
		return &wktCache{}, nil
	}
	c, err := lru.New[uint64, orb.Geometry](size)
	if err != nil {
		return nil, err
	}
	return &wktCache{lru: c}, nil
}

func (c *wktCache) parse(s string) (orb.Geometry, error) {
	s = stripSRID(strings.TrimSpace(s))
	if s == "" {
		return nil, errors.New("empty wkt")
	}
	var key uint64
	if c.lru != nil {
		key = xxhash.Sum64String(s)
		if g, ok := c.lru.Get(key); ok {
			return g, nil
		}
	}
	g, err := decodeText(s)
	if err != nil {
		return nil, err
	}
	if c.lru != nil {
		c.lru.Add(key, g)
	}
	return g, nil
}

// decodeText accepts WKT, or GeoJSON geometry text as produced by
// ST_AsGeoJSON.
func decodeText(s string) (orb.Geometry, error) {
	if !strings.HasPrefix(s, "{") {
		return wkt.Unmarshal(s)
	}
	g, err := geojson.UnmarshalGeometry([]byte(s))
	if err != nil {
		return nil, err
	}
	if g.Geometry() == nil {
		return nil, errors.New("geojson geometry has no coordinates")
	}
	return g.Geometry(), nil
}

// stripSRID drops an EWKT "SRID=n;" prefix.
func stripSRID(s string) string {
	if len(s) > 5 && strings.EqualFold(s[:5], "SRID=") {
		if i := strings.IndexByte(s, ';'); i >= 0 {
			return strings.TrimSpace(s[i+1:])
		}
	}
	return s
}
