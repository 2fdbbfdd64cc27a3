package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-catalog/internal/categories"
	"github.com/angelmondragon/packfinderz-catalog/internal/reconcile"
	"github.com/angelmondragon/packfinderz-catalog/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-catalog/pkg/errors"
	"github.com/angelmondragon/packfinderz-catalog/pkg/redis"
)

// Session is one uploaded file moving through preview, review and run.
type Session struct {
	ID         uuid.UUID          `json:"id"`
	TenantID   uuid.UUID          `json:"tenantId"`
	UserID     string             `json:"userId,omitempty"`
	FileName   string             `json:"fileName"`
	Format     enums.FileFormat   `json:"format"`
	Status     enums.ImportStatus `json:"status"`
	Plan       *reconcile.Plan    `json:"plan"`
	Categories []categories.Node  `json:"categories"`
	Progress   *Progress          `json:"progress,omitempty"`
	Report     *Report            `json:"report,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// Tree rebuilds the category snapshot the plan was computed against.
func (s *Session) Tree() *categories.Tree {
	return categories.NewTree(s.Categories)
}

// Summary counts the plan against the session snapshot.
func (s *Session) Summary() reconcile.Summary {
	if s.Plan == nil {
		return reconcile.Summary{}
	}
	return s.Plan.Summarize(s.Tree())
}

// Editable reports whether the operator may still change the plan.
func (s *Session) Editable() bool {
	return s.Status == enums.ImportStatusDraft || s.Status == enums.ImportStatusAbortedValidation
}

// SessionStore persists sessions between requests and guards runs.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error)
	Lock(ctx context.Context, importID uuid.UUID, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, importID uuid.UUID, token string) error
}

// RedisSessionStore keeps sessions as JSON under a tenant-scoped key.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore wires a store with the given session TTL.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) (*RedisSessionStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode import session")
	}
	key := r.client.ImportSessionKey(s.TenantID.String(), s.ID.String())
	if err := r.client.Set(ctx, key, payload, r.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store import session")
	}
	return nil
}

func (r *RedisSessionStore) Load(ctx context.Context, tenantID, importID uuid.UUID) (*Session, error) {
	key := r.client.ImportSessionKey(tenantID.String(), importID.String())
	raw, err := r.client.Get(ctx, key)
	if errors.Is(err, redis.ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "import not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load import session")
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode import session")
	}
	// reviewing keeps the session alive
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, key, r.ttl); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend import session")
		}
	}
	return &s, nil
}

func (r *RedisSessionStore) Lock(ctx context.Context, importID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	return r.client.AcquireLock(ctx, r.client.ImportLockKey(importID.String()), token, ttl)
}

func (r *RedisSessionStore) Unlock(ctx context.Context, importID uuid.UUID, token string) error {
	return r.client.ReleaseLock(ctx, r.client.ImportLockKey(importID.String()), token)
}

// MemorySessionStore is a process-local SessionStore used by the CLI and tests.
// Sessions are stored as JSON so callers never share mutable state.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID][]byte
	locks    map[uuid.UUID]string
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[uuid.UUID][]byte),
		locks:    make(map[uuid.UUID]string),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode import session")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = payload
	return nil
}

func (m *MemorySessionStore) Load(_ context.Context, tenantID, importID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	payload, ok := m.sessions[importID]
	m.mu.Unlock()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "import not found")
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode import session")
	}
	if s.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "import not found")
	}
	return &s, nil
}

func (m *MemorySessionStore) Lock(_ context.Context, importID uuid.UUID, token string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[importID]; held {
		return false, nil
	}
	m.locks[importID] = token
	return true, nil
}

func (m *MemorySessionStore) Unlock(_ context.Context, importID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[importID] == token {
		delete(m.locks, importID)
	}
	return nil
}
