package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/product-tagger/internal/domain"
	infralogger "github.com/jonesrussell/north-cloud/product-tagger/internal/infra/logger"
)

// DefaultBulkSize is the number of documents per bulk request.
const DefaultBulkSize = 500

// SinkConfig configures the Elasticsearch sink.
type SinkConfig struct {
	Index    string
	BulkSize int
	// RequestsPerSecond throttles bulk requests. Zero means unlimited.
	RequestsPerSecond float64
}

// ElasticsearchSink bulk-indexes tagged products.
type ElasticsearchSink struct {
	client   *es.Client
	index    string
	bulkSize int
	limiter  *rate.Limiter
	logger   infralogger.Logger
	now      func() time.Time
}

// NewElasticsearchClient creates a client for the given node addresses.
func NewElasticsearchClient(addresses ...string) (*es.Client, error) {
	client, err := es.NewClient(es.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// NewElasticsearchSink creates a sink writing to cfg.Index.
func NewElasticsearchSink(client *es.Client, cfg SinkConfig, logger infralogger.Logger) (*ElasticsearchSink, error) {
	if client == nil {
		return nil, errors.New("elasticsearch client is nil")
	}
	if cfg.Index == "" {
		return nil, errors.New("elasticsearch index is required")
	}
	if logger == nil {
		logger = infralogger.NewNop()
	}
	bulkSize := cfg.BulkSize
	if bulkSize <= 0 {
		bulkSize = DefaultBulkSize
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &ElasticsearchSink{
		client:   client,
		index:    cfg.Index,
		bulkSize: bulkSize,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		now:      time.Now,
	}, nil
}

type indexDocument struct {
	domain.TaggedProduct
	TaggedAt time.Time `json:"tagged_at"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Index writes tagged products in chunks of the configured bulk size and returns the
// number of documents indexed. Documents use the product id as _id, so re-running a
// batch overwrites rather than duplicates.
func (s *ElasticsearchSink) Index(ctx context.Context, tagged []domain.TaggedProduct) (int, error) {
	indexed := 0
	taggedAt := s.now().UTC()
	for lo := 0; lo < len(tagged); lo += s.bulkSize {
		hi := min(lo+s.bulkSize, len(tagged))
		if err := s.limiter.Wait(ctx); err != nil {
			return indexed, fmt.Errorf("wait for bulk slot: %w", err)
		}
		if err := s.bulk(ctx, tagged[lo:hi], taggedAt); err != nil {
			return indexed, err
		}
		indexed += hi - lo
	}

	s.logger.Info("Tagged products indexed",
		infralogger.String("index", s.index),
		infralogger.Int("documents", indexed),
	)
	return indexed, nil
}

func (s *ElasticsearchSink) bulk(ctx context.Context, chunk []domain.TaggedProduct, taggedAt time.Time) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// category paths contain '>'
	enc.SetEscapeHTML(false)
	for _, t := range chunk {
		meta := map[string]any{
			"index": map[string]any{
				"_index": s.index,
				"_id":    t.ID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("failed to encode meta: %w", err)
		}
		if err := enc.Encode(indexDocument{TaggedProduct: t, TaggedAt: taggedAt}); err != nil {
			return fmt.Errorf("failed to encode product %s: %w", t.ID, err)
		}
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk indexing error: %s", res.String())
	}

	var body bulkResponse
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !body.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range body.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			failed++
			if first == "" {
				first = fmt.Sprintf("%s: %s", result.ID, result.Error.Reason)
			}
		}
	}
	return fmt.Errorf("bulk indexing rejected %d of %d documents (first: %s)", failed, len(chunk), first)
}
