package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"mython/internal/core"
	"mython/internal/log"
)

const (
	defaultESIndex = "mython"
	esFlushBytes   = 2048
)

// ElasticsearchV8 indexes one document per transaction, keyed by id, and
// removes documents whose transaction no longer exists.
type ElasticsearchV8 struct {
	es     *elasticsearch.Client
	index  string
	logger *log.Logger
}

// NewElasticsearchV8 accepts http://host:9200[/index].
func NewElasticsearchV8(rawURL string, logger *log.Logger) (*ElasticsearchV8, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse elasticsearch url: %w", err)
	}
	index := strings.Trim(u.Path, "/")
	if index == "" {
		index = defaultESIndex
	}
	u.Path = ""

	retryBackoff := backoff.NewExponentialBackOff()
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{u.String()},

		// Retry on 429 TooManyRequests statuses
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			if i == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
		MaxRetries: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ElasticsearchV8{es: es, index: index, logger: logger}, nil
}

func (e *ElasticsearchV8) Name() string { return "es8:" + e.index }

type esDocument struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Particulars string `json:"particulars"`
	Mode        string `json:"mode"`
	Month       string `json:"month"`
	Position    int    `json:"position"`
}

func (e *ElasticsearchV8) ensureIndex(ctx context.Context) error {
	res, err := e.es.Indices.Exists([]string{e.index}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = e.es.Indices.Create(e.index, e.es.Indices.Create.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("create index: %s", res.String())
	}
	return nil
}

func (e *ElasticsearchV8) Write(ctx context.Context, txs []core.Transaction) error {
	if err := e.ensureIndex(ctx); err != nil {
		return err
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		FlushBytes:    esFlushBytes,
		Client:        e.es,
		NumWorkers:    2,
		FlushInterval: 10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create bulk indexer: %w", err)
	}

	var failed atomic.Int64
	for i, t := range txs {
		data, err := json.Marshal(esDocument{
			ID:          t.ID,
			Date:        t.Date.String(),
			Type:        t.Kind.String(),
			Amount:      core.FormatAmount(t.Amount),
			Particulars: t.Label,
			Mode:        t.Mode.String(),
			Month:       t.Date.MonthIndex().Name(),
			Position:    i,
		})
		if err != nil {
			return err
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: t.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					e.logger.ErrorContext(ctx, "Failed to index transaction", log.FieldTxID, item.DocumentID, log.FieldError, err)
				} else {
					e.logger.ErrorContext(ctx, "Failed to index transaction", log.FieldTxID, item.DocumentID,
						"type", res.Error.Type, "reason", res.Error.Reason)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("queue document: %w", err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return fmt.Errorf("flush bulk indexer: %w", err)
	}

	stats := bi.Stats()
	if stats.NumFailed > 0 || failed.Load() > 0 {
		return fmt.Errorf("failed indexing %d docs", stats.NumFailed)
	}

	if err := e.pruneDeleted(ctx, txs); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "Indexed ledger snapshot",
		log.FieldSink, e.Name(),
		log.FieldLen, int64(stats.NumFlushed))
	return nil
}

// pruneDeleted removes documents whose id is not in txs.
func (e *ElasticsearchV8) pruneDeleted(ctx context.Context, txs []core.Transaction) error {
	ids := make([]string, len(txs))
	for i, t := range txs {
		ids[i] = t.ID
	}
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must_not": map[string]any{
					"ids": map[string]any{"values": ids},
				},
			},
		},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return err
	}

	res, err := e.es.DeleteByQuery([]string{e.index}, bytes.NewReader(body),
		e.es.DeleteByQuery.WithContext(ctx),
		e.es.DeleteByQuery.WithRefresh(true))
	if err != nil {
		return fmt.Errorf("prune deleted: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("prune deleted: %s", res.String())
	}
	return nil
}
