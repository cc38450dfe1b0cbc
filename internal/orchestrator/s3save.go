package orchestrator

import (
	"context"
	"path"

	"github.com/rs/zerolog/log"
)

// Uploader is the subset of storage.S3Client used to publish results.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)
}

// S3Publisher uploads results to {Prefix}/{run id}/{file name}.
type S3Publisher struct {
	Uploader Uploader
	Prefix   string
}

func (p *S3Publisher) Key(runID, name string) string {
	if runID == "" {
		return path.Join(p.Prefix, name)
	}
	return path.Join(p.Prefix, runID, name)
}

func (p *S3Publisher) Publish(ctx context.Context, runID, name string, data []byte) (string, error) {
	key := p.Key(runID, name)
	meta := map[string]string{"name": name}
	if runID != "" {
		meta["run-id"] = runID
	}
	url, err := p.Uploader.Upload(ctx, key, data, "text/plain; charset=utf-8", meta)
	if err != nil {
		return "", err
	}
	log.Info().Str("run_id", runID).Str("key", key).Msg("published output")
	return url, nil
}
