package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hardenlab/hardenctl/internal/domain"
	"github.com/hardenlab/hardenctl/internal/storage/objectstore"
)

type fakeStore struct {
	objects map[string][]byte
	ctypes  map[string]string
	failOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, ctypes: map[string]string{}}
}

func (f *fakeStore) Put(_ context.Context, _ string, key string, body io.Reader, _ int64, contentType string) error {
	if f.failOn != "" && key == f.failOn {
		return errors.New("store unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.ctypes[key] = contentType
	return nil
}

func (f *fakeStore) Stat(_ context.Context, _ string, key string) (objectstore.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return objectstore.ObjectInfo{}, errors.New("not found")
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, key string) error {
	delete(f.objects, key)
	return nil
}

func builtRun(t *testing.T) domain.Run {
	t.Helper()
	workDir := t.TempDir()
	run := domain.Run{Tag: "run0314", WorkDir: workDir, Design: "tt_um_example"}
	if err := os.MkdirAll(filepath.Dir(run.FinalGDSPath()), 0o755); err != nil {
		t.Fatalf("mkdir gds: %v", err)
	}
	if err := os.WriteFile(run.FinalGDSPath(), []byte("gds-bytes"), 0o644); err != nil {
		t.Fatalf("write gds: %v", err)
	}
	if err := os.MkdirAll(run.SignoffDir(), 0o755); err != nil {
		t.Fatalf("mkdir signoff: %v", err)
	}
	if err := os.WriteFile(filepath.Join(run.SignoffDir(), "drc.rpt"), []byte("clean\n"), 0o644); err != nil {
		t.Fatalf("write drc report: %v", err)
	}
	if err := os.WriteFile(run.SummaryPath(), []byte("summary\n"), 0o644); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	return run
}

func newTestPublisher(t *testing.T, store objectstore.Store) *Publisher {
	t.Helper()
	p, err := NewPublisher(store, "tapeouts")
	if err != nil {
		t.Fatalf("NewPublisher() err=%v", err)
	}
	p.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	id := 0
	p.newID = func() string {
		id++
		return string(rune('a' + id - 1))
	}
	return p
}

func TestPublishRun(t *testing.T) {
	store := newFakeStore()
	p := newTestPublisher(t, store)
	run := builtRun(t)

	manifest, err := p.PublishRun(context.Background(), run)
	if err != nil {
		t.Fatalf("PublishRun() err=%v", err)
	}

	gdsKey := "runs/run0314/gds/tt_um_example.gds"
	if _, ok := store.objects[gdsKey]; !ok {
		t.Fatalf("missing gds object, have %v", keys(store.objects))
	}
	if _, ok := store.objects["runs/run0314/summary/summary-info-run0314.txt"]; !ok {
		t.Fatalf("missing summary object, have %v", keys(store.objects))
	}
	if _, ok := store.objects["runs/run0314/signoff/drc.rpt"]; !ok {
		t.Fatalf("missing signoff object, have %v", keys(store.objects))
	}
	if _, ok := store.objects["runs/run0314/manifest.json"]; !ok {
		t.Fatalf("missing manifest, have %v", keys(store.objects))
	}

	if manifest.Tag != "run0314" || manifest.Design != "tt_um_example" {
		t.Fatalf("manifest=%+v", manifest)
	}
	sum := sha256.Sum256([]byte("gds-bytes"))
	wantSHA := hex.EncodeToString(sum[:])
	found := false
	for _, a := range manifest.Artifacts {
		if a.Kind == "gds" {
			found = true
			if a.SHA256 != wantSHA {
				t.Fatalf("gds sha=%s, want %s", a.SHA256, wantSHA)
			}
			if a.SizeBytes != int64(len("gds-bytes")) {
				t.Fatalf("gds size=%d", a.SizeBytes)
			}
			if a.ObjectKey != gdsKey {
				t.Fatalf("gds key=%s", a.ObjectKey)
			}
		}
	}
	if !found {
		t.Fatalf("manifest missing gds artifact: %+v", manifest.Artifacts)
	}
}

func TestPublishRun_SkipsAbsentOptionalArtifacts(t *testing.T) {
	store := newFakeStore()
	p := newTestPublisher(t, store)
	run := builtRun(t)
	if err := os.Remove(run.SummaryPath()); err != nil {
		t.Fatalf("remove summary: %v", err)
	}

	manifest, err := p.PublishRun(context.Background(), run)
	if err != nil {
		t.Fatalf("PublishRun() err=%v", err)
	}
	for _, a := range manifest.Artifacts {
		if a.Kind == "summary" || a.Kind == "render" {
			t.Fatalf("unexpected optional artifact: %+v", a)
		}
	}
}

func TestPublishRun_RequiresFinalGDS(t *testing.T) {
	store := newFakeStore()
	p := newTestPublisher(t, store)
	run := builtRun(t)
	if err := os.Remove(run.FinalGDSPath()); err != nil {
		t.Fatalf("remove gds: %v", err)
	}

	_, err := p.PublishRun(context.Background(), run)
	if !errors.Is(err, ErrNoFinalGDS) {
		t.Fatalf("PublishRun() err=%v, want ErrNoFinalGDS", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("nothing should be uploaded, have %v", keys(store.objects))
	}
}

func TestPublishRun_StoreFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.failOn = "runs/run0314/gds/tt_um_example.gds"
	p := newTestPublisher(t, store)
	run := builtRun(t)

	if _, err := p.PublishRun(context.Background(), run); err == nil {
		t.Fatalf("expected upload failure to propagate")
	}
	if _, ok := store.objects["runs/run0314/manifest.json"]; ok {
		t.Fatalf("manifest must not be written after a failed upload")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
