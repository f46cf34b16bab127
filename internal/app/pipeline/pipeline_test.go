package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonas-p/go-shp"
	"github.com/klauspost/compress/zip"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/water-intersect/internal/cache/redisstore"
	"github.com/mohammed-shakir/water-intersect/internal/cache/resultcache"
	"github.com/mohammed-shakir/water-intersect/internal/dataset"
	"github.com/mohammed-shakir/water-intersect/internal/fault"
	"github.com/mohammed-shakir/water-intersect/internal/intersect"
	"github.com/mohammed-shakir/water-intersect/internal/logger"
	"github.com/mohammed-shakir/water-intersect/internal/notify/kafka"
	"github.com/mohammed-shakir/water-intersect/internal/source"
)

// unit square (0,0)-(1,1), clockwise as shapefiles store exteriors
var waterSquare = []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}

const (
	overlapTarget = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
"geometry":{"type":"Polygon","coordinates":[[[0.5,0.5],[1.5,0.5],[1.5,1.5],[0.5,1.5],[0.5,0.5]]]}}]}`
	disjointTarget = `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
"geometry":{"type":"Polygon","coordinates":[[[5,5],[6,5],[6,6],[5,6],[5,5]]]}}]}`
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeWater(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "water.shp")
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("create shapefile: %v", err)
	}
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{waterSquare}))
	w.Write(&poly)
	w.Close()
	return path
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newDeps(t *testing.T) Deps {
	t.Helper()
	r, err := source.New(source.Options{Logger: quiet(), WKTCacheSize: 16})
	if err != nil {
		t.Fatalf("source.New: %v", err)
	}
	return Deps{
		Logger: quiet(),
		Reader: r,
		Engine: intersect.New(intersect.DedupAdjacent, quiet()),
		Now:    func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
}

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev kafka.Event) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestRun_OverlapWritesWaterPolygon(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "result.geojson")
	pub := &recordingPublisher{}
	deps := newDeps(t)
	deps.Publisher = pub

	ctx := logger.WithRunID(context.Background(), "run-42")
	sum, err := Run(ctx, Options{
		Target: writeFile(t, dir, "targets.geojson", overlapTarget),
		Output: out,
		Water:  writeWater(t, dir),
	}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Water != 1 || sum.Targets != 1 || sum.Matched != 1 || sum.Output != out {
		t.Fatalf("summary=%+v", sum)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got, err := source.DecodeGeoJSON(raw)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}}}
	if len(got) != 1 || !orb.Equal(got[0], want) {
		t.Fatalf("output=%v want [%v]", got, want)
	}

	if len(pub.events) != 1 {
		t.Fatalf("events=%d want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.RunID != "run-42" || ev.Matched != 1 || ev.Output != out || ev.CRS != dataset.DefaultCRS {
		t.Fatalf("event=%+v", ev)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("published invalid event: %v", err)
	}
}

func TestRun_DisjointWritesNothing(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "result.geojson")

	sum, err := Run(context.Background(), Options{
		Target: writeFile(t, dir, "targets.geojson", disjointTarget),
		Output: out,
		Water:  writeWater(t, dir),
	}, newDeps(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Matched != 0 || sum.Output != "" {
		t.Fatalf("summary=%+v", sum)
	}
	if sum.RunID == "" {
		t.Fatalf("run id not generated")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("output should not exist, stat err=%v", err)
	}
}

func TestRun_PublisherFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	deps := newDeps(t)
	deps.Publisher = &recordingPublisher{err: errors.New("broker down")}

	_, err := Run(context.Background(), Options{
		Target: writeFile(t, dir, "targets.geojson", overlapTarget),
		Output: filepath.Join(dir, "out.geojson"),
		Water:  writeWater(t, dir),
	}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no target", Options{Output: "o.geojson", Water: "w.shp"}},
		{"no output", Options{Target: "t.geojson", Water: "w.shp"}},
		{"bad output ext", Options{Target: "t.geojson", Output: "o.json", Water: "w.shp"}},
		{"no water source", Options{Target: "t.geojson", Output: "o.geojson"}},
		{"download without acquirer", Options{Target: "t.geojson", Output: "o.geojson", Download: true}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Run(context.Background(), tc.opts, newDeps(t))
			if fault.KindOf(err) != fault.Config {
				t.Fatalf("err=%v want config error", err)
			}
		})
	}
}

func TestRun_MissingTargetIsIOError(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Options{
		Target: filepath.Join(dir, "missing.geojson"),
		Output: filepath.Join(dir, "o.geojson"),
		Water:  writeWater(t, dir),
	}, newDeps(t))
	if fault.KindOf(err) != fault.IO {
		t.Fatalf("err=%v want io error", err)
	}
}

// zipDataset packs the shapefile at shpPath into the archive layout served
// upstream.
func zipDataset(t *testing.T, shpPath string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	base := shpPath[:len(shpPath)-len(".shp")]
	for _, ext := range []string{".shp", ".shx"} {
		data, err := os.ReadFile(base + ext)
		if err != nil {
			t.Fatalf("read %s: %v", ext, err)
		}
		w, err := zw.Create("water-polygons-split-4326/water_polygons" + ext)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func downloadDeps(t *testing.T, root string) Deps {
	t.Helper()
	archive := zipDataset(t, writeWater(t, t.TempDir()))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(srv.Close)

	acq, err := dataset.New(dataset.Options{Logger: quiet(), Root: root, URLs: map[string]string{"4326": srv.URL}})
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	deps := newDeps(t)
	deps.Acquirer = acq
	return deps
}

func TestRun_DownloadCleansUp(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	deps := downloadDeps(t, root)

	sum, err := Run(context.Background(), Options{
		Target:   writeFile(t, dir, "targets.geojson", overlapTarget),
		Output:   filepath.Join(dir, "out.geojson"),
		CRS:      "4326",
		Download: true,
	}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Matched != 1 {
		t.Fatalf("matched=%d want 1", sum.Matched)
	}
	for _, p := range []string{dataset.ArchivePath(root, "4326"), dataset.ExtractDir(root, "4326")} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("%s not cleaned up", p)
		}
	}
}

func TestRun_DownloadKeep(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	deps := downloadDeps(t, root)

	_, err := Run(context.Background(), Options{
		Target:   writeFile(t, dir, "targets.geojson", disjointTarget),
		Output:   filepath.Join(dir, "out.geojson"),
		Download: true,
		Keep:     true,
	}, deps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataset.ExtractDir(root, "4326"), "water_polygons.shp")); err != nil {
		t.Fatalf("extraction not kept: %v", err)
	}
}

func TestRun_DownloadFailureStillCleansUp(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a zip"))
	}))
	defer srv.Close()
	acq, err := dataset.New(dataset.Options{Logger: quiet(), Root: root, URLs: map[string]string{"4326": srv.URL}})
	if err != nil {
		t.Fatal(err)
	}
	deps := newDeps(t)
	deps.Acquirer = acq

	_, err = Run(context.Background(), Options{
		Target:   writeFile(t, dir, "targets.geojson", overlapTarget),
		Output:   filepath.Join(dir, "out.geojson"),
		Download: true,
	}, deps)
	if fault.KindOf(err) != fault.IO {
		t.Fatalf("err=%v want io error", err)
	}
	if _, err := os.Stat(dataset.ArchivePath(root, "4326")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("archive left behind after failure")
	}
}

func TestRun_ResultCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = cli.Close() })

	dir := t.TempDir()
	deps := newDeps(t)
	deps.Cache = resultcache.New(cli, time.Hour, quiet())
	opts := Options{
		Target: writeFile(t, dir, "targets.geojson", overlapTarget),
		Output: filepath.Join(dir, "out.geojson"),
		Water:  writeWater(t, dir),
	}

	first, err := Run(context.Background(), opts, deps)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.Cached {
		t.Fatalf("first run should not be cached")
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("keys=%v want one result entry", mr.Keys())
	}

	second, err := Run(context.Background(), opts, deps)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !second.Cached || second.Matched != first.Matched {
		t.Fatalf("second=%+v first=%+v", second, first)
	}
}
