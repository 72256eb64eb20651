package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikolay-makurin/entityview/internal/config"
	"github.com/nikolay-makurin/entityview/pkg/types"
)

// RedisSink keeps one JSON document per replicated object, keyed by a
// template over {{.type}} and {{.id}}.
type RedisSink struct {
	client     *redis.Client
	keyTmpl    *template.Template
	expiration time.Duration
}

func NewRedisSink(cfg config.RedisTarget) (*RedisSink, error) {
	opt, err := redis.ParseURL(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid redis connection string: %w", err)
	}

	tmpl, err := parseKeyPattern(cfg.KeyPattern)
	if err != nil {
		return nil, err
	}

	return &RedisSink{
		client:     redis.NewClient(opt),
		keyTmpl:    tmpl,
		expiration: cfg.Expiration,
	}, nil
}

func parseKeyPattern(pattern string) (*template.Template, error) {
	tmpl, err := template.New("key").Option("missingkey=error").Parse(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern: %w", err)
	}
	return tmpl, nil
}

func (s *RedisSink) Write(ctx context.Context, batch *types.Batch) error {
	slog.Debug("RedisSink received batch", "deletes", len(batch.DeleteIDs), "rows", len(batch.Rows))
	pipe := s.client.TxPipeline()

	for _, id := range batch.DeleteIDs {
		key, err := s.generateKey(batch.Type, id)
		if err != nil {
			return err
		}
		pipe.Del(ctx, key)
	}

	for _, row := range batch.Rows {
		key, err := s.generateKey(batch.Type, row.ID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal object %d: %w", row.ID, err)
		}
		pipe.Set(ctx, key, data, s.expiration)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func (s *RedisSink) generateKey(t types.ReplicationType, id int64) (string, error) {
	var buf bytes.Buffer
	data := map[string]any{"type": string(t), "id": id}
	if err := s.keyTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute key template: %w", err)
	}
	return buf.String(), nil
}
