package archive

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mstefan99/beacon/internal/appstore"
)

func TestArchivePathLayout(t *testing.T) {
	s := &Service{cfg: Config{Dir: filepath.Join("data", "archive")}}

	path := s.archivePath(7, "hits")

	wantDir := filepath.Join("data", "archive", "7", "hits")
	if filepath.Dir(path) != wantDir {
		t.Errorf("archive dir = %q, want %q", filepath.Dir(path), wantDir)
	}
	if !strings.HasSuffix(path, ".parquet") {
		t.Errorf("archive file %q is not a parquet file", path)
	}
}

func TestRowConversions(t *testing.T) {
	ref := "https://search.example"
	h := &appstore.Hit{ID: 7, ClientID: "abc", UA: "agent", URL: "/home", Referrer: &ref, TimeMs: 1000}
	hr := hitToRow(h)
	if hr.ID != 7 || hr.Referrer != ref || hr.TimeMs != 1000 {
		t.Errorf("hit row = %+v", hr)
	}

	hNoRef := &appstore.Hit{ID: 8, ClientID: "abc", URL: "/home", TimeMs: 2000}
	if got := hitToRow(hNoRef).Referrer; got != "" {
		t.Errorf("nil referrer mapped to %q, want empty", got)
	}

	cpu := 0.5
	m := &appstore.Metric{ID: 1, TimeMs: 3000, CPU: &cpu}
	mr := metricToRow(m)
	if mr.CPU != 0.5 || mr.MemUsed != 0 {
		t.Errorf("metric row = %+v", mr)
	}
}
