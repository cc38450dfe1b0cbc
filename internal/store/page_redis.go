package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PageRecord is one finished page of a run.
type PageRecord struct {
	Page         int
	Label        string
	Raw          string
	Corrected    string
	HasCorrected bool
}

// RunMeta identifies the document a run was started for, so a resume can
// refuse a mismatched input.
type RunMeta struct {
	PDF        string
	TotalPages int
	StartPage  int
	Mode       string
}

// PageStore keeps finished pages under run:{id}:page:{n}.
type PageStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageStore(client *redis.Client, ttl time.Duration) *PageStore {
	return &PageStore{client: client, ttl: ttl}
}

func (s *PageStore) pageKey(runID string, page int) string {
	return runKey(runID, fmt.Sprintf("page:%d", page))
}

// SavePages writes all records in one transaction.
func (s *PageStore) SavePages(ctx context.Context, runID string, recs []PageRecord) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, r := range recs {
			key := s.pageKey(runID, r.Page)
			m := map[string]interface{}{
				"label": r.Label,
				"raw":   r.Raw,
			}
			if r.HasCorrected {
				m["corrected"] = r.Corrected
			}
			p.HSet(ctx, key, m)
			if s.ttl > 0 {
				p.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	return err
}

// LoadPages returns the saved records among pages first..last keyed by page.
func (s *PageStore) LoadPages(ctx context.Context, runID string, first, last int) (map[int]PageRecord, error) {
	cmds := make(map[int]*redis.MapStringStringCmd, last-first+1)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := first; i <= last; i++ {
			cmds[i] = p.HGetAll(ctx, s.pageKey(runID, i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make(map[int]PageRecord)
	for page, cmd := range cmds {
		res := cmd.Val()
		if len(res) == 0 {
			continue
		}
		corrected, has := res["corrected"]
		out[page] = PageRecord{
			Page:         page,
			Label:        res["label"],
			Raw:          res["raw"],
			Corrected:    corrected,
			HasCorrected: has,
		}
	}
	return out, nil
}

// SaveMeta records which document runID belongs to.
func (s *PageStore) SaveMeta(ctx context.Context, runID string, m RunMeta) error {
	key := runKey(runID, "meta")
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, map[string]interface{}{
			"pdf":         m.PDF,
			"total_pages": m.TotalPages,
			"start_page":  m.StartPage,
			"mode":        m.Mode,
		})
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

// GetMeta returns the run metadata, false when the run is unknown.
func (s *PageStore) GetMeta(ctx context.Context, runID string) (RunMeta, bool, error) {
	res, err := s.client.HGetAll(ctx, runKey(runID, "meta")).Result()
	if err != nil {
		return RunMeta{}, false, err
	}
	if len(res) == 0 {
		return RunMeta{}, false, nil
	}
	total, _ := strconv.Atoi(res["total_pages"])
	start, _ := strconv.Atoi(res["start_page"])
	return RunMeta{PDF: res["pdf"], TotalPages: total, StartPage: start, Mode: res["mode"]}, true, nil
}
