package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/count"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/update"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/sortorder"
	"github.com/rs/zerolog/log"

	"fleetpulse-backend/config"
	"fleetpulse-backend/internal/model"
	"fleetpulse-backend/internal/repository"
)

// uploadTimesScanSize bounds how many upload timestamps one scan returns.
const uploadTimesScanSize = 10000

type elasticsearchLogRepository struct {
	esTypedClient *elasticsearch.TypedClient
	index         string
}

func NewElasticsearchLogRepository(cfg *config.Config) (repository.LogRepository, error) {
	transport := &http.Transport{
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: time.Second * 10,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
	}
	esCfgForTyped := elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Transport: transport,
	}

	typedClient, err := elasticsearch.NewTypedClient(esCfgForTyped)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Typed Elasticsearch Client in Repository")
		return nil, err
	}

	return &elasticsearchLogRepository{
		esTypedClient: typedClient,
		index:         cfg.Elasticsearch.LogIndex,
	}, nil
}

func (r *elasticsearchLogRepository) GetByID(ctx context.Context, id string) (*model.LogEntry, error) {
	res, err := r.esTypedClient.Get(r.index, id).Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("log_id", id).Msg("Error fetching log from Elasticsearch")
		return nil, fmt.Errorf("elasticsearch get failed: %w", err)
	}
	if !res.Found || res.Source_ == nil {
		return nil, nil
	}

	var entry model.LogEntry
	if err := json.Unmarshal(res.Source_, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log %s: %w", id, err)
	}
	if entry.ID == "" {
		entry.ID = res.Id_
	}
	return &entry, nil
}

func (r *elasticsearchLogRepository) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]model.LogEntry, error) {
	order := sortorder.Desc
	searchRequest := &search.Request{
		Query: &types.Query{
			Bool: &types.BoolQuery{
				Filter: []types.Query{deviceFilter(deviceID)},
			},
		},
		Size: &limit,
		Sort: []types.SortCombinations{
			types.SortOptions{
				SortOptions: map[string]types.FieldSort{
					"uploaded_at": {Order: &order},
				},
			},
		},
	}

	res, err := r.esTypedClient.Search().
		Index(r.index).
		Request(searchRequest).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error fetching recent logs from Elasticsearch")
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}

	logs := make([]model.LogEntry, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var entry model.LogEntry
		if err := json.Unmarshal(hit.Source_, &entry); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling Elasticsearch hit source")
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (r *elasticsearchLogRepository) UploadTimesSince(ctx context.Context, deviceID string, since time.Time) ([]time.Time, error) {
	sinceStr := since.Format(time.RFC3339Nano)
	order := sortorder.Asc
	size := uploadTimesScanSize
	searchRequest := &search.Request{
		Query: &types.Query{
			Bool: &types.BoolQuery{
				Filter: []types.Query{
					deviceFilter(deviceID),
					{
						Range: map[string]types.RangeQuery{
							"uploaded_at": types.DateRangeQuery{
								Gte: &sinceStr,
							},
						},
					},
				},
			},
		},
		Size: &size,
		Sort: []types.SortCombinations{
			types.SortOptions{
				SortOptions: map[string]types.FieldSort{
					"uploaded_at": {Order: &order},
				},
			},
		},
	}

	res, err := r.esTypedClient.Search().
		Index(r.index).
		Request(searchRequest).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error scanning upload times from Elasticsearch")
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}

	times := make([]time.Time, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		if hit.Source_ == nil {
			continue
		}
		var entry model.LogEntry
		if err := json.Unmarshal(hit.Source_, &entry); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling Elasticsearch hit source")
			continue
		}
		times = append(times, entry.UploadedAt)
	}
	return times, nil
}

func (r *elasticsearchLogRepository) Count(ctx context.Context, deviceID string) (int64, error) {
	countRequest := &count.Request{
		Query: &types.Query{
			Bool: &types.BoolQuery{
				Filter: []types.Query{deviceFilter(deviceID)},
			},
		},
	}
	res, err := r.esTypedClient.Count().
		Index(r.index).
		Request(countRequest).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("device_id", deviceID).Msg("Error counting logs in Elasticsearch")
		return 0, fmt.Errorf("elasticsearch count failed: %w", err)
	}
	return res.Count, nil
}

// MergeMetadata relies on Elasticsearch partial-document updates merging
// objects recursively: only the given metadata key is written, all other
// metadata keys are preserved.
func (r *elasticsearchLogRepository) MergeMetadata(ctx context.Context, id string, key string, value interface{}) error {
	doc, err := json.Marshal(map[string]interface{}{
		"metadata": map[string]interface{}{key: value},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata patch: %w", err)
	}

	_, err = r.esTypedClient.Update(r.index, id).
		Request(&update.Request{Doc: doc}).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("log_id", id).Msg("Error merging log metadata in Elasticsearch")
		return fmt.Errorf("elasticsearch update failed: %w", err)
	}
	return nil
}

func (r *elasticsearchLogRepository) Store(ctx context.Context, entry *model.LogEntry) error {
	_, err := r.esTypedClient.Index(r.index).
		Id(entry.ID).
		Document(entry).
		Do(ctx)
	if err != nil {
		log.Error().Err(err).Str("log_id", entry.ID).Msg("Error indexing log into Elasticsearch")
		return fmt.Errorf("elasticsearch index failed: %w", err)
	}
	return nil
}

func deviceFilter(deviceID string) types.Query {
	return types.Query{
		Term: map[string]types.TermQuery{
			"device_id.keyword": {Value: deviceID},
		},
	}
}
