package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"artifact-compiler/internal/models"
)

const defaultReportIndex = "failure-reports"

// ElasticsearchSink indexes reports as documents keyed by report id. Resolve
// uses optimistic concurrency on _seq_no/_primary_term.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	if index == "" {
		index = defaultReportIndex
	}
	return &ElasticsearchSink{client: client, index: index}
}

const reportIndexMapping = `{
  "mappings": {
    "properties": {
      "id":             {"type": "keyword"},
      "phase":          {"type": "keyword"},
      "artifactId":     {"type": "keyword"},
      "artifactKind":   {"type": "keyword"},
      "category":       {"type": "keyword"},
      "errorKind":      {"type": "keyword"},
      "recoveryAction": {"type": "keyword"},
      "status":         {"type": "keyword"},
      "blocking":       {"type": "boolean"},
      "summary":        {"type": "text"},
      "rawExcerpt":     {"type": "text", "index": false},
      "details":        {"type": "object", "enabled": false},
      "createdAt":      {"type": "date"},
      "resolvedAt":     {"type": "date"}
    }
  }
}`

// EnsureIndex creates the report index with keyword mappings when missing.
func (s *ElasticsearchSink) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check report index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(reportIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("create report index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create report index: %s", res.String())
	}
	return nil
}

type esGetResponse struct {
	Found       bool                 `json:"found"`
	SeqNo       int                  `json:"_seq_no"`
	PrimaryTerm int                  `json:"_primary_term"`
	Source      models.FailureReport `json:"_source"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.FailureReport `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *ElasticsearchSink) Save(ctx context.Context, r *models.FailureReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal failure report: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(r.ID),
		s.client.Index.WithOpType("create"),
		s.client.Index.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("index failure report: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusConflict {
		return ErrDuplicateReport
	}
	if res.IsError() {
		return fmt.Errorf("index failure report: %s", res.String())
	}
	return nil
}

func (s *ElasticsearchSink) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	doc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Source, nil
}

func (s *ElasticsearchSink) get(ctx context.Context, id string) (*esGetResponse, error) {
	res, err := s.client.Get(s.index, id, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get failure report: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrReportNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get failure report: %s", res.String())
	}

	var doc esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode failure report: %w", err)
	}
	if !doc.Found {
		return nil, ErrReportNotFound
	}
	return &doc, nil
}

// Resolve retries when another writer changed the document between read and write.
func (s *ElasticsearchSink) Resolve(ctx context.Context, id, resolution string, at time.Time) (*models.FailureReport, error) {
	for i := 0; i < maxResolveAttempts; i++ {
		doc, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}
		out, err := resolved(&doc.Source, resolution, at)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("marshal failure report: %w", err)
		}

		res, err := s.client.Index(
			s.index,
			bytes.NewReader(body),
			s.client.Index.WithContext(ctx),
			s.client.Index.WithDocumentID(id),
			s.client.Index.WithIfSeqNo(doc.SeqNo),
			s.client.Index.WithIfPrimaryTerm(doc.PrimaryTerm),
			s.client.Index.WithRefresh("wait_for"),
		)
		if err != nil {
			return nil, fmt.Errorf("resolve failure report: %w", err)
		}
		status, msg := res.StatusCode, res.String()
		io.Copy(io.Discard, res.Body)
		res.Body.Close()

		switch {
		case status == http.StatusConflict:
			continue
		case status >= 300:
			return nil, fmt.Errorf("resolve failure report: %s", msg)
		}
		return out, nil
	}
	return nil, fmt.Errorf("resolve %s: too many concurrent updates", id)
}

func (s *ElasticsearchSink) List(ctx context.Context, filter ListFilter) ([]*models.FailureReport, error) {
	var must []map[string]interface{}
	if filter.Status != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"status": string(filter.Status)}})
	}
	if filter.Phase != "" {
		must = append(must, map[string]interface{}{"term": map[string]interface{}{"phase": filter.Phase}})
	}
	query := map[string]interface{}{"match_all": map[string]interface{}{}}
	if len(must) > 0 {
		query = map[string]interface{}{"bool": map[string]interface{}{"filter": must}}
	}
	body, err := json.Marshal(map[string]interface{}{
		"query": query,
		"size":  filter.limit(),
		"sort":  []map[string]interface{}{{"createdAt": map[string]interface{}{"order": "desc"}}},
	})
	if err != nil {
		return nil, err
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failure reports: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failure reports: %s", res.String())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]*models.FailureReport, 0, len(parsed.Hits.Hits))
	for i := range parsed.Hits.Hits {
		out = append(out, &parsed.Hits.Hits[i].Source)
	}
	return out, nil
}
