package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/imagerender"
)

// Pinger models the minimal capability we need from Redis and S3.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker runs the preflight checks behind the doctor command.
type Checker struct {
	redis      Pinger
	s3         Pinger
	s3Bucket   string
	httpClient *http.Client
	providers  config.ProvidersConfig
	inputDir   string
}

// Options configures the Checker. Redis and S3 are optional; a nil pinger
// is reported as not configured.
type Options struct {
	Redis      Pinger
	S3         Pinger
	S3Bucket   string
	HTTPClient *http.Client
	Providers  config.ProvidersConfig
	InputDir   string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK       bool   `json:"ok"`
	Required bool   `json:"required"`
	Message  string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Engine   Status `json:"engine"`
	MuPDF    Status `json:"mupdf"`
	InputDir Status `json:"input_dir"`
	Redis    Status `json:"redis"`
	S3       Status `json:"s3"`
}

func New(opts Options) *Checker {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	p := opts.Providers
	p.GeminiAPIKey = strings.TrimSpace(p.GeminiAPIKey)
	p.OpenAIAPIKey = strings.TrimSpace(p.OpenAIAPIKey)
	p.AnthropicAPIKey = strings.TrimSpace(p.AnthropicAPIKey)
	return &Checker{
		redis:      opts.Redis,
		s3:         opts.S3,
		s3Bucket:   opts.S3Bucket,
		httpClient: client,
		providers:  p,
		inputDir:   opts.InputDir,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Engine:   c.checkEngine(ctx),
		MuPDF:    c.checkMuPDF(),
		InputDir: c.checkInputDir(),
		Redis:    c.checkRedis(ctx),
		S3:       c.checkS3(ctx),
	}
}

// Ready returns an error naming every required subsystem that failed.
func (s Summary) Ready() error {
	var failed []string
	named := s.Named()
	for _, name := range Order {
		if st := named[name]; st.Required && !st.OK {
			failed = append(failed, fmt.Sprintf("%s: %s", name, st.Message))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New("not ready: " + strings.Join(failed, "; "))
}

// Named keys each status by subsystem name.
func (s Summary) Named() map[string]Status {
	return map[string]Status{
		"engine":    s.Engine,
		"mupdf":     s.MuPDF,
		"input_dir": s.InputDir,
		"redis":     s.Redis,
		"s3":        s.S3,
	}
}

// Order is the display order of Named.
var Order = []string{"engine", "mupdf", "input_dir", "redis", "s3"}

func (c *Checker) checkEngine(ctx context.Context) Status {
	key := c.providers.APIKey()
	if key == "" {
		return Status{Required: true, Message: c.providers.CredentialEnv() + " missing"}
	}
	base := ai.BaseURL(c.providers)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var req *http.Request
	switch c.providers.Engine {
	case config.EngineOpenAI:
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, base+"/models?limit=1", nil)
		req.Header.Set("Authorization", "Bearer "+key)
	case config.EngineAnthropic:
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	default:
		req, _ = http.NewRequestWithContext(ctx, http.MethodGet, base+"/models?pageSize=1", nil)
		req.Header.Set("x-goog-api-key", key)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{Required: true, Message: trimError(err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Status{Required: true, Message: fmt.Sprintf("%s HTTP %d", c.providers.Engine, resp.StatusCode)}
	}
	models := c.providers.Models()
	return Status{OK: true, Required: true, Message: fmt.Sprintf("%s available (ocr=%s, correction=%s)",
		c.providers.Engine, models.OCR, models.Correction)}
}

func (c *Checker) checkMuPDF() Status {
	v := imagerender.Version()
	if v == "" {
		return Status{Required: true, Message: "MuPDF not linked"}
	}
	return Status{OK: true, Required: true, Message: "MuPDF " + v}
}

func (c *Checker) checkInputDir() Status {
	if c.inputDir == "" {
		return Status{OK: true, Message: "not configured"}
	}
	fi, err := os.Stat(c.inputDir)
	if err != nil {
		return Status{Message: trimError(err)}
	}
	if !fi.IsDir() {
		return Status{Message: c.inputDir + " is not a directory"}
	}
	return Status{OK: true, Message: c.inputDir}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{Required: true, Message: trimError(err)}
	}
	return Status{OK: true, Required: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3 == nil {
		return Status{OK: true, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.s3.Ping(ctx); err != nil {
		return Status{Required: true, Message: trimError(err)}
	}
	return Status{OK: true, Required: true, Message: "Connected to " + c.s3Bucket}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
