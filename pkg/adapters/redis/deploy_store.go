package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 5

// DeployStore implements ports.DeployRecordStore on Redis. Records are JSON
// strings; a second key maps the build job to its record.
type DeployStore struct {
	client *backend.Client
	opts   options
}

var _ ports.DeployRecordStore = (*DeployStore)(nil)

// NewDeployStore creates a deploy record store on an existing client.
func NewDeployStore(client *backend.Client, opts ...Option) *DeployStore {
	return &DeployStore{client: client, opts: buildOptions(opts)}
}

func (s *DeployStore) key(id string) string { return s.opts.prefix + "deploy:" + id }

func (s *DeployStore) jobKey(jobID string) string { return s.opts.prefix + "deploy:job:" + jobID }

// Create stores a new record.
func (s *DeployStore) Create(ctx context.Context, rec *domain.DeployRecord) error {
	if rec.ID == "" {
		return errors.New("create deploy record: id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal deploy record: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(rec.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to save deploy record: %w", err)
	}
	if !ok {
		return fmt.Errorf("deploy record %s already exists", rec.ID)
	}
	if rec.BuildJobID != "" {
		if err := s.client.Set(ctx, s.jobKey(rec.BuildJobID), rec.ID, 0).Err(); err != nil {
			return fmt.Errorf("failed to index deploy record: %w", err)
		}
	}
	return nil
}

// Get loads a record.
func (s *DeployStore) Get(ctx context.Context, id string) (*domain.DeployRecord, error) {
	return s.load(ctx, s.client, id)
}

// FindByJob loads the record of a build job.
func (s *DeployStore) FindByJob(ctx context.Context, jobID string) (*domain.DeployRecord, error) {
	id, err := s.client.Get(ctx, s.jobKey(jobID)).Result()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrDeployNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find deploy record: %w", err)
	}
	return s.Get(ctx, id)
}

// Update runs fn in an optimistic transaction on the record key and retries
// when another writer got there first.
func (s *DeployStore) Update(ctx context.Context, id string, fn func(*domain.DeployRecord) error) error {
	key := s.key(id)
	txf := func(tx *backend.Tx) error {
		rec, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal deploy record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update deploy record %s: too much contention", id)
}

func (s *DeployStore) load(ctx context.Context, c backend.StringCmdable, id string) (*domain.DeployRecord, error) {
	raw, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrDeployNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deploy record: %w", err)
	}
	var rec domain.DeployRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deploy record: %w", err)
	}
	return &rec, nil
}
