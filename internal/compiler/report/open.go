package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"artifact-compiler/internal/common/aws"
	"artifact-compiler/internal/common/config"
	"artifact-compiler/internal/common/database"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenSink connects the sink selected by cfg.Reports.Sink and prepares its
// table or index. The returned closer releases the connection.
func OpenSink(ctx context.Context, cfg *config.Config) (Sink, io.Closer, error) {
	switch cfg.Reports.Sink {
	case "", config.SinkMemory:
		return NewMemorySink(), nopCloser{}, nil

	case config.SinkPostgres:
		db, err := database.ConnectPostgres(ctx, cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		sink := NewPostgresSink(db)
		if err := sink.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sink, db, nil

	case config.SinkRedis:
		rdb, err := database.ConnectRedis(ctx, cfg.Database.Redis)
		if err != nil {
			return nil, nil, err
		}
		ttl := time.Duration(cfg.Reports.RedisTTLHours) * time.Hour
		return NewRedisSink(rdb, cfg.Reports.RedisPrefix, ttl), rdb, nil

	case config.SinkElasticsearch:
		es, err := database.ConnectElasticsearch(ctx, cfg.Database.Elasticsearch)
		if err != nil {
			return nil, nil, err
		}
		sink := NewElasticsearchSink(es, cfg.Reports.ESIndex)
		if err := sink.EnsureIndex(ctx); err != nil {
			return nil, nil, err
		}
		return sink, nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown report sink %q", cfg.Reports.Sink)
}

// OpenNotifier returns the notifiers configured for blocking reports, or nil
// when notification is disabled.
func OpenNotifier(ctx context.Context, cfg *config.Config) (Notifier, error) {
	if !cfg.Reports.NotifyBlocking {
		return nil, nil
	}
	var notifiers MultiNotifier
	if cfg.AWS.SNSTopicARN != "" {
		client, err := aws.NewSNSClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("create sns client: %w", err)
		}
		notifiers = append(notifiers, NewSNSNotifier(client, cfg.AWS.SNSTopicARN))
	}
	if cfg.AWS.SESSender != "" {
		client, err := aws.NewSESClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("create ses client: %w", err)
		}
		notifiers = append(notifiers, NewSESNotifier(client, cfg.AWS.SESSender, cfg.AWS.NotifyEmails))
	}
	switch len(notifiers) {
	case 0:
		return nil, nil
	case 1:
		return notifiers[0], nil
	}
	return notifiers, nil
}
