package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestError_MessageAndUnwrap(t *testing.T) {
	err := IOError("open shapefile", "/tmp/water.shp", fs.ErrNotExist)

	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("errors.Is(ErrNotExist)=false for %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"io", "open shapefile", "/tmp/water.shp"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"config", Configf("dispatch", "unsupported extension %q", ".txt"), Config},
		{"wrapped-parse", fmt.Errorf("read target: %w", ParseError("decode geojson", "a.geojson", errors.New("bad"))), Parse},
		{"remote", RemoteError("query", errors.New("boom")), Remote},
		{"plain", errors.New("plain"), Unknown},
		{"nil", nil, Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf=%v want %v", got, tc.want)
			}
		})
	}
}

func TestKind_String(t *testing.T) {
	if Config.String() != "config" || Remote.String() != "remote" || Kind(42).String() != "unknown" {
		t.Fatalf("unexpected kind names")
	}
}
