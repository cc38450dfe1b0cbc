package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfocr/internal/storage"
)

const (
	httpTempPrefix = "pdfocr-dl-"
	s3TempPrefix   = "pdfocr-s3-"
)

// S3Downloader is the subset of storage.S3Client used for s3:// inputs.
type S3Downloader interface {
	Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
}

// Input is a PDF available on the local filesystem.
type Input struct {
	Ref  string // as given by the caller
	Path string // local file
	Stem string // base name without extension, used for output names
	temp bool
}

// Close removes the local copy when it was downloaded.
func (in *Input) Close() error {
	if in == nil || !in.temp {
		return nil
	}
	return os.Remove(in.Path)
}

// Resolver turns a PDF reference into a local file. Supported references:
// - file://path or absolute/relative filesystem paths
// - bare names, looked up in InputDir
// - http(s):// URLs (downloads to temp)
// - s3://bucket/key (downloads to temp via AWS SDK v2)
type Resolver struct {
	InputDir string
	HTTP     *http.Client
	S3       S3Downloader
}

// Resolve locates or downloads ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Input, error) {
	switch {
	case strings.HasPrefix(ref, "s3://"):
		bucket, key, err := storage.ParseURL(ref)
		if err != nil {
			return nil, err
		}
		p, err := r.downloadS3(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		return &Input{Ref: ref, Path: p, Stem: stem(path.Base(key)), temp: true}, nil
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("invalid url %s: %w", ref, err)
		}
		p, err := r.downloadHTTP(ctx, ref)
		if err != nil {
			return nil, err
		}
		name := path.Base(u.Path)
		if name == "/" || name == "." {
			name = "download.pdf"
		}
		return &Input{Ref: ref, Path: p, Stem: stem(name), temp: true}, nil
	case strings.HasPrefix(ref, "file://"):
		p := strings.TrimPrefix(ref, "file://")
		return r.local(ref, p)
	default:
		return r.local(ref, ref)
	}
}

func (r *Resolver) local(ref, p string) (*Input, error) {
	candidates := []string{p}
	if r.InputDir != "" && !filepath.IsAbs(p) && !strings.ContainsRune(p, filepath.Separator) {
		candidates = append(candidates, filepath.Join(r.InputDir, p))
		if !strings.EqualFold(filepath.Ext(p), ".pdf") {
			candidates = append(candidates, filepath.Join(r.InputDir, p+".pdf"))
		}
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return &Input{Ref: ref, Path: c, Stem: stem(filepath.Base(c))}, nil
		}
	}
	return nil, fmt.Errorf("pdf not found: %s", ref)
}

func (r *Resolver) downloadHTTP(ctx context.Context, u string) (string, error) {
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: http %d", u, resp.StatusCode)
	}
	f, err := os.CreateTemp("", httpTempPrefix+"*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("download %s: %w", u, err)
	}
	log.Info().Str("url", u).Str("file", filepath.Base(f.Name())).Msg("downloaded pdf to temp")
	return f.Name(), nil
}

func (r *Resolver) downloadS3(ctx context.Context, bucket, key string) (string, error) {
	dl := r.S3
	if dl == nil {
		cli, err := storage.NewS3Client(ctx, storage.Options{Bucket: bucket})
		if err != nil {
			return "", err
		}
		dl = cli
	}
	// Keep a .pdf extension for pdfcpu and MuPDF.
	f, err := os.CreateTemp("", s3TempPrefix+"*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := dl.Download(ctx, bucket, key, f); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ListPDFs returns the PDF file names in dir, sorted.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}
