package log_shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// Indexer acknowledges a document once it is durably accepted
type Indexer interface {
	Index(ctx context.Context, doc IndexDocument) error
}

type ElasticsearchOptions struct {
	MaxRetries    int
	RetryInterval time.Duration
}

// ElasticsearchIndexer indexes documents with the index API
type ElasticsearchIndexer struct {
	client *elasticsearch.Client
	index  string
	log    *zap.Logger
}

func NewElasticsearchIndexer(url, index string, opts ElasticsearchOptions, log *zap.Logger) (*ElasticsearchIndexer, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = opts.RetryInterval

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:     []string{url},
		RetryOnStatus: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		MaxRetries:    opts.MaxRetries,
		RetryBackoff: func(attempt int) time.Duration {
			if attempt == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Using Elasticsearch", zap.String("url", url), zap.String("index", index))
	return &ElasticsearchIndexer{client: client, index: index, log: log}, nil
}

func (i *ElasticsearchIndexer) Index(ctx context.Context, doc IndexDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: doc.ID(),
		Body:       bytes.NewReader(data),
	}

	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing document: %s", res.String())
	}

	i.log.Debug("Indexed document", zap.String("username", doc.Username), zap.String("id", doc.ID()))
	return nil
}

// LogIndexer stands in when no Elasticsearch URL is configured; it only logs the document
type LogIndexer struct {
	log *zap.Logger
}

func NewLogIndexer(log *zap.Logger) *LogIndexer {
	return &LogIndexer{log: log}
}

func (i *LogIndexer) Index(_ context.Context, doc IndexDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	i.log.Info("Would send to Elasticsearch", zap.ByteString("document", data))
	return nil
}
