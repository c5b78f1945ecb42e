package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// DeployStore implements ports.DeployRecordStore in memory.
type DeployStore struct {
	mu      sync.RWMutex
	records map[string]domain.DeployRecord
	byJob   map[string]string
}

var _ ports.DeployRecordStore = (*DeployStore)(nil)

// NewDeployStore creates an empty store.
func NewDeployStore() *DeployStore {
	return &DeployStore{
		records: make(map[string]domain.DeployRecord),
		byJob:   make(map[string]string),
	}
}

func (s *DeployStore) Create(ctx context.Context, rec *domain.DeployRecord) error {
	if rec.ID == "" {
		return errors.New("create deploy record: id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("deploy record %s already exists", rec.ID)
	}
	s.records[rec.ID] = *rec
	if rec.BuildJobID != "" {
		s.byJob[rec.BuildJobID] = rec.ID
	}
	return nil
}

func (s *DeployStore) Get(ctx context.Context, id string) (*domain.DeployRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrDeployNotFound
	}
	return &rec, nil
}

func (s *DeployStore) FindByJob(ctx context.Context, jobID string) (*domain.DeployRecord, error) {
	s.mu.RLock()
	id, ok := s.byJob[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrDeployNotFound
	}
	return s.Get(ctx, id)
}

func (s *DeployStore) Update(ctx context.Context, id string, fn func(*domain.DeployRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ErrDeployNotFound
	}
	if err := fn(&rec); err != nil {
		return err
	}
	s.records[id] = rec
	return nil
}
