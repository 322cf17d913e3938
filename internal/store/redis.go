package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ezekiel98Tz/PrintingAgent/internal/models"
	"github.com/Ezekiel98Tz/PrintingAgent/pkg/logger"
)

const (
	redisIndexKey   = "documents"
	redisMaxRetries = 16
)

func redisDocKey(id string) string   { return "document:" + id }
func redisLogKey(id string) string   { return "document:" + id + ":log" }
func redisPrintKey(id string) string { return "print_job:" + id }

// RedisStore keeps records as JSON values. Update uses WATCH/MULTI and
// retries on conflict, which gives the per-id serialization across processes.
type RedisStore struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisStore(client *redis.Client, log logger.Logger) *RedisStore {
	return &RedisStore{client: client, logger: log}
}

func (s *RedisStore) Create(ctx context.Context, doc *models.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	ok, err := s.client.SetNX(ctx, redisDocKey(doc.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", doc.ID, ErrExists)
	}
	return s.client.ZAdd(ctx, redisIndexKey, redis.Z{
		Score:  float64(doc.CreatedAt.UnixNano()),
		Member: doc.ID,
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.Document, error) {
	data, err := s.client.Get(ctx, redisDocKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return decodeDocument(id, data)
}

func decodeDocument(id string, data []byte) (*models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	if doc.Attempts == nil {
		doc.Attempts = map[models.Stage]int{}
	}
	return &doc, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Document, error) {
	key := redisDocKey(id)
	var result *models.Document

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		doc, err := decodeDocument(id, data)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		doc.ID = id
		doc.UpdatedAt = time.Now()
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			result = doc
		}
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("update %s: too much contention", id)
}

func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*models.Document, error) {
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisDocKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	var docs []*models.Document
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		doc, err := decodeDocument(ids[i], []byte(raw))
		if err != nil {
			s.logger.Warn("skipping undecodable document", logger.DocumentID(ids[i]), logger.Error(err))
			continue
		}
		if filter.match(doc) {
			docs = append(docs, doc)
		}
	}
	return filter.finish(docs), nil
}

func (s *RedisStore) AppendLog(ctx context.Context, id string, entry models.LogEntry) error {
	n, err := s.client.Exists(ctx, redisDocKey(id)).Result()
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	return s.client.RPush(ctx, redisLogKey(id), data).Err()
}

func (s *RedisStore) Log(ctx context.Context, id string) ([]models.LogEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	raws, err := s.client.LRange(ctx, redisLogKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	entries := make([]models.LogEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.LogEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) PrintJob(ctx context.Context, id string) (string, bool, error) {
	job, err := s.client.Get(ctx, redisPrintKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read print ledger: %w", err)
	}
	return job, true, nil
}

func (s *RedisStore) RecordPrintJob(ctx context.Context, id, jobID string) (string, error) {
	if _, err := s.client.SetNX(ctx, redisPrintKey(id), jobID, 0).Result(); err != nil {
		return "", fmt.Errorf("record print job: %w", err)
	}
	existing, _, err := s.PrintJob(ctx, id)
	return existing, err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
