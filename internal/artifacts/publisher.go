// Package artifacts publishes the output of a completed run to
// S3-compatible object storage: the final GDS, the summary report, the
// rendered image, and the signoff reports, plus a manifest indexing them.
package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hardenlab/hardenctl/internal/domain"
	"github.com/hardenlab/hardenctl/internal/storage/objectstore"
)

// ErrNoFinalGDS reports a publish attempt for a run without its final
// layout file. With the marker-file completion check this usually means a
// stale marker from a partially completed run.
var ErrNoFinalGDS = errors.New("final gds not found; run may be incomplete")

type Publisher struct {
	bucket string
	store  objectstore.Store
	now    func() time.Time
	newID  func() string
}

func NewPublisher(store objectstore.Store, bucket string) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Publisher{
		bucket: bucket,
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// Artifact describes one published object.
type Artifact struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"`
	SHA256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Manifest indexes everything published for one run tag.
type Manifest struct {
	Tag         string     `json:"tag"`
	Design      string     `json:"design"`
	PublishedAt time.Time  `json:"published_at"`
	Artifacts   []Artifact `json:"artifacts"`
}

// PublishRun uploads the run's artifacts under runs/<tag>/ keys and
// finishes with a manifest.json indexing them. The final GDS is required;
// summary, render, and signoff reports are published when present.
func (p *Publisher) PublishRun(ctx context.Context, run domain.Run) (Manifest, error) {
	if p == nil || p.store == nil {
		return Manifest{}, errors.New("publisher not initialized")
	}
	if err := run.Validate(); err != nil {
		return Manifest{}, err
	}
	if _, err := os.Stat(run.FinalGDSPath()); err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrNoFinalGDS, run.FinalGDSPath())
		}
		return Manifest{}, fmt.Errorf("stat final gds: %w", err)
	}

	manifest := Manifest{
		Tag:         run.Tag,
		Design:      run.Design,
		PublishedAt: p.now().UTC(),
	}

	uploads := []struct {
		kind     string
		path     string
		ctype    string
		required bool
	}{
		{kind: "gds", path: run.FinalGDSPath(), ctype: "application/octet-stream", required: true},
		{kind: "summary", path: run.SummaryPath(), ctype: "text/plain"},
		{kind: "render", path: run.RenderPath(), ctype: "image/png"},
	}
	for _, u := range uploads {
		artifact, err := p.putFile(ctx, run.Tag, u.kind, u.path, u.ctype)
		if err != nil {
			if !u.required && os.IsNotExist(err) {
				continue
			}
			return Manifest{}, err
		}
		manifest.Artifacts = append(manifest.Artifacts, artifact)
	}

	reports, err := signoffReports(run.SignoffDir())
	if err != nil {
		return Manifest{}, err
	}
	for _, path := range reports {
		artifact, err := p.putFile(ctx, run.Tag, "signoff", path, "text/plain")
		if err != nil {
			return Manifest{}, err
		}
		manifest.Artifacts = append(manifest.Artifacts, artifact)
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	key := manifestKey(run.Tag)
	if err := p.store.Put(ctx, p.bucket, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return Manifest{}, fmt.Errorf("upload manifest: %w", err)
	}
	return manifest, nil
}

func (p *Publisher) putFile(ctx context.Context, tag, kind, path, contentType string) (Artifact, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, err
	}
	sum := sha256.Sum256(body)
	name := filepath.Base(path)
	key := objectKey(tag, kind, name)
	if err := p.store.Put(ctx, p.bucket, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return Artifact{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return Artifact{
		ID:          p.newID(),
		Kind:        kind,
		Name:        name,
		ObjectKey:   key,
		ContentType: contentType,
		SHA256:      hex.EncodeToString(sum[:]),
		SizeBytes:   int64(len(body)),
	}, nil
}

func objectKey(tag, kind, name string) string {
	return fmt.Sprintf("runs/%s/%s/%s", tag, kind, name)
}

func manifestKey(tag string) string {
	return fmt.Sprintf("runs/%s/manifest.json", tag)
}

func signoffReports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read signoff directory: %w", err)
	}
	var reports []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".rpt") {
			continue
		}
		reports = append(reports, filepath.Join(dir, e.Name()))
	}
	return reports, nil
}
