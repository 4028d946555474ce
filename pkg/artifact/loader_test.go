package artifact

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/errors"
)

func writeFiles(t *testing.T, files map[string][]byte) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoad(t *testing.T) {
	zst, err := compress.For(compress.AlgorithmZSTD).Encode([]byte(`[{"service":"kTCCServiceCamera"}]`))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	gz, err := compress.For(compress.AlgorithmGzip).Encode([]byte(`[]`))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	dir := writeFiles(t, map[string][]byte{
		"info.json":                 []byte(`{"mvt_version":"2.5.0"}`),
		"sms_detected.json":         []byte(`[{"module":"SMS","url":"https://evil.example"}]`),
		"tcc.json.zst":              zst,
		"calls.json.gz":             gz,
		"broken.json":               []byte(`{"unterminated":`),
		"empty.json":                nil,
		"trailing.json":             []byte(`{} {}`),
		"notes.txt":                 []byte(`not an artifact`),
		"command.log":               []byte(`log`),
		"webkit_resource_load.json": []byte(`[{"RegistrableDomain":"tracker.example"}]`),
	})
	if err := os.Mkdir(filepath.Join(dir, "nested.json"), 0o755); err != nil {
		t.Fatal(err)
	}

	set, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantKeys := []string{"calls", "info", "sms_detected", "tcc", "webkit_resource_load"}
	if got := set.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}
	if got := set.FindingsKeys(); !reflect.DeepEqual(got, []string{"sms_detected"}) {
		t.Errorf("FindingsKeys() = %v", got)
	}
	if set.Source("tcc") != "tcc.json.zst" {
		t.Errorf("Source(tcc) = %q", set.Source("tcc"))
	}

	if len(warnings) != 3 {
		t.Fatalf("got %d warnings, want 3: %v", len(warnings), warnings)
	}
	var files []string
	for _, w := range warnings {
		files = append(files, w.File)
		if !errors.IsParseError(w.Err) {
			t.Errorf("warning %s kind = %v, want parse", w.File, errors.GetKind(w.Err))
		}
	}
	if want := []string{"broken.json", "empty.json", "trailing.json"}; !reflect.DeepEqual(files, want) {
		t.Errorf("warning files = %v, want %v", files, want)
	}

	records, err := set.Records("tcc")
	if err != nil || len(records) != 1 || records[0].String("service") != "kTCCServiceCamera" {
		t.Errorf("Records(tcc) = %v, %v", records, err)
	}
}

func TestLoad_ParallelMatchesSequential(t *testing.T) {
	files := map[string][]byte{}
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		files[k+".json"] = []byte(`{"key":"` + k + `"}`)
	}
	files["bad.json"] = []byte(`nope`)
	dir := writeFiles(t, files)

	seq, seqWarn, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	par, parWarn, err := Load(dir, WithWorkers(4))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seq.Keys(), par.Keys()) {
		t.Errorf("parallel keys = %v, want %v", par.Keys(), seq.Keys())
	}
	if len(seqWarn) != len(parWarn) {
		t.Errorf("parallel warnings = %d, want %d", len(parWarn), len(seqWarn))
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name:  "empty path",
			setup: func(t *testing.T) string { return "" },
		},
		{
			name:  "missing directory",
			setup: func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") },
		},
		{
			name:  "empty directory",
			setup: func(t *testing.T) string { return t.TempDir() },
		},
		{
			name: "only unparseable files",
			setup: func(t *testing.T) string {
				return writeFiles(t, map[string][]byte{"a.json": []byte(`{`), "b.txt": []byte(`{}`)})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, _, err := Load(tt.setup(t))
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !errors.IsLoadError(err) {
				t.Errorf("Load() error kind = %v, want load", errors.GetKind(err))
			}
			if set != nil {
				t.Error("Load() returned a set on error")
			}
		})
	}
}

func TestLoad_MaxFileSize(t *testing.T) {
	dir := writeFiles(t, map[string][]byte{
		"big.json":   []byte(`["` + string(make([]byte, 64)) + `"]`),
		"small.json": []byte(`{}`),
	})
	set, warnings, err := Load(dir, WithMaxFileSize(16))
	if err != nil {
		t.Fatal(err)
	}
	if set.Has("big") || len(warnings) != 1 {
		t.Errorf("big file should be skipped, warnings = %v", warnings)
	}
}

func TestLoad_MaxFileSizeAppliesAfterDecompression(t *testing.T) {
	plain := []byte(`["` + strings.Repeat("a", 4096) + `"]`)
	gz, err := compress.For(compress.AlgorithmGzip).Encode(plain)
	if err != nil {
		t.Fatal(err)
	}
	dir := writeFiles(t, map[string][]byte{
		"expands.json.gz": gz,
		"small.json":      []byte(`{}`),
	})

	set, warnings, err := Load(dir, WithMaxFileSize(1024))
	if err != nil {
		t.Fatal(err)
	}
	if set.Has("expands") || len(warnings) != 1 {
		t.Fatalf("expanding file should be skipped, warnings = %v", warnings)
	}
	if !stderrors.Is(warnings[0].Err, compress.ErrTooLarge) {
		t.Errorf("warning = %v, want ErrTooLarge", warnings[0].Err)
	}
}

func TestLoad_DuplicateKey(t *testing.T) {
	zst, _ := compress.For(compress.AlgorithmZSTD).Encode([]byte(`{"from":"zst"}`))
	dir := writeFiles(t, map[string][]byte{
		"info.json":     []byte(`{"from":"plain"}`),
		"info.json.zst": zst,
	})
	set, warnings, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := set.Record("info")
	if rec.String("from") != "plain" {
		t.Errorf("info loaded from %q, want plain", rec.String("from"))
	}
	if len(warnings) != 1 || warnings[0].File != "info.json.zst" {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestLoad_Symlinks(t *testing.T) {
	target := filepath.Join(t.TempDir(), "shared_sms.json")
	if err := os.WriteFile(target, []byte(`[{"text":"hi"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := writeFiles(t, map[string][]byte{"info.json": []byte(`{}`)})
	links := map[string]string{
		"sms.json":      target,
		"dangling.json": filepath.Join(dir, "absent.json"),
		"folder.json":   t.TempDir(),
	}
	for name, to := range links {
		if err := os.Symlink(to, filepath.Join(dir, name)); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}

	set, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !set.Has("sms") || set.Source("sms") != "sms.json" {
		t.Errorf("Keys() = %v, want the linked sms artifact", set.Keys())
	}
	got := map[string]bool{}
	for _, w := range warnings {
		got[w.File] = true
		if errors.GetKind(w.Err) != errors.KindParse {
			t.Errorf("warning %s kind = %v, want parse", w.File, errors.GetKind(w.Err))
		}
	}
	if len(warnings) != 2 || !got["dangling.json"] || !got["folder.json"] {
		t.Errorf("warnings = %v, want dangling.json and folder.json", warnings)
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name, want string
	}{
		{"sms.json", "sms"},
		{"applications_detected.json", "applications_detected"},
		{"tcc.json.zst", "tcc"},
		{"/tmp/x/calls.json.gz", "calls"},
		{"Info.JSON", "Info"},
		{".json", ""},
		{"a", ""},
		{"", ""},
		{".gz", ""},
		{"notes.txt", ""},
	}
	for _, tt := range tests {
		if got := KeyFor(tt.name); got != tt.want {
			t.Errorf("KeyFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSet_Shapes(t *testing.T) {
	set := NewSet(map[string]any{
		"backup_info":  map[string]any{"Device Name": "Phone"},
		"applications": []any{map[string]any{"name": "A"}, "junk", map[string]any{"name": "B"}},
		"netusage":     []any{},
		"datausage":    []any{map[string]any{}},
		"scalar":       "text",
	})

	if _, err := set.Records("backup_info"); err == nil {
		t.Error("Records(object) expected error")
	}
	if _, err := set.Record("applications"); err == nil {
		t.Error("Record(list) expected error")
	}
	recs, err := set.Records("applications")
	if err != nil || len(recs) != 2 {
		t.Errorf("Records(applications) = %d, %v; want 2 objects", len(recs), err)
	}
	if recs, err := set.Records("missing"); recs != nil || err != nil {
		t.Errorf("Records(missing) = %v, %v", recs, err)
	}
	if n, ok := set.Count("applications"); !ok || n != 3 {
		t.Errorf("Count(applications) = %d, %v", n, ok)
	}
	if _, ok := set.Count("scalar"); ok {
		t.Error("Count(scalar) ok = true")
	}
	if key, ok := set.FirstNonEmpty("netusage", "datausage"); !ok || key != "datausage" {
		t.Errorf("FirstNonEmpty() = %q, %v", key, ok)
	}
}
