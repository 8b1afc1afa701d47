// Package store provides collaborator implementations for the engine and
// runner: in-memory stores for tests and small deployments, and
// Postgres-backed stores (via pgx) for production use.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
)

// Memory is an in-memory implementation of PipelineStorage, CredentialStorage
// and RecipientDirectory, keyed by project ID. It is safe for concurrent use
// and is the backing store the config loader populates from a project
// manifest file.
type Memory struct {
	mu          sync.RWMutex
	pipelines   map[string][]pipeline.Pipeline   // projectID -> pipelines
	credentials map[string]map[string]credential.Credential // projectID -> credentialID -> credential
	recipients  map[string]map[string]recipient.Recipient   // projectID -> recipientID -> recipient
}

// NewMemory builds an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		pipelines:   make(map[string][]pipeline.Pipeline),
		credentials: make(map[string]map[string]credential.Credential),
		recipients:  make(map[string]map[string]recipient.Recipient),
	}
}

// AddPipeline registers a pipeline. Intended for config loading and tests.
func (m *Memory) AddPipeline(p pipeline.Pipeline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[p.ProjectID] = append(m.pipelines[p.ProjectID], p)
}

// AddCredential registers a credential. Intended for config loading and tests.
func (m *Memory) AddCredential(c credential.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credentials[c.ProjectID] == nil {
		m.credentials[c.ProjectID] = make(map[string]credential.Credential)
	}
	m.credentials[c.ProjectID][c.ID] = c
}

// AddRecipient registers a recipient. Intended for config loading and tests.
func (m *Memory) AddRecipient(projectID string, r recipient.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recipients[projectID] == nil {
		m.recipients[projectID] = make(map[string]recipient.Recipient)
	}
	m.recipients[projectID][r.ID] = r
}

// PipelinesFor implements interfaces.PipelineStorage.
func (m *Memory) PipelinesFor(ctx context.Context, projectID, eventName string) ([]pipeline.Pipeline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []pipeline.Pipeline
	for _, p := range m.pipelines[projectID] {
		if p.EventName == eventName {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// Credential implements interfaces.CredentialStorage.
func (m *Memory) Credential(ctx context.Context, projectID, credentialID string) (credential.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creds, ok := m.credentials[projectID]
	if !ok {
		return credential.Credential{}, fmt.Errorf("store: no credentials registered for project %q", projectID)
	}
	c, ok := creds[credentialID]
	if !ok {
		return credential.Credential{}, fmt.Errorf("store: credential %q not found for project %q", credentialID, projectID)
	}
	return c, nil
}

// Recipient implements interfaces.RecipientDirectory.
func (m *Memory) Recipient(ctx context.Context, projectID, recipientID string) (recipient.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recs, ok := m.recipients[projectID]
	if !ok {
		return recipient.Recipient{}, fmt.Errorf("store: no recipients registered for project %q", projectID)
	}
	r, ok := recs[recipientID]
	if !ok {
		return recipient.Recipient{}, fmt.Errorf("store: recipient %q not found for project %q", recipientID, projectID)
	}
	return r, nil
}
