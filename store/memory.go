package store

import (
	"context"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// Memory is an in-process RowStore with the same version and TTL semantics as Store.
// It backs local runs and tests.
type Memory struct {
	mu   sync.Mutex
	rows map[Kind]map[string]map[string]types.AttributeValue
	now  func() time.Time
}

var _ RowStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[Kind]map[string]map[string]types.AttributeValue),
		now:  time.Now,
	}
}

func (m *Memory) Get(ctx context.Context, kind Kind, key string) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.rows[kind][key]
	if !ok || IsDeleted(item) {
		return nil, ErrNotFound
	}
	return memoryRow(kind, key, item), nil
}

func (m *Memory) Put(ctx context.Context, row *Row, expectedVersion string) (string, error) {
	if row == nil || row.Kind == "" || row.Key == "" {
		return "", ErrInvalidRow
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if expectedVersion != "" {
		if err := m.checkVersion(row.Kind, row.Key, expectedVersion); err != nil {
			return "", err
		}
	}

	version := uuid.New().String()
	item := cloneAttrs(row.Attrs)
	item[attrVersion] = &types.AttributeValueMemberS{Value: version}
	item[attrUpdatedAt] = &types.AttributeValueMemberS{Value: m.now().UTC().Format(time.RFC3339)}

	if m.rows[row.Kind] == nil {
		m.rows[row.Kind] = make(map[string]map[string]types.AttributeValue)
	}
	m.rows[row.Kind][row.Key] = item
	return version, nil
}

func (m *Memory) Delete(ctx context.Context, kind Kind, key, expectedVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.rows[kind][key]
	if !ok || IsDeleted(item) {
		return ErrNotFound
	}
	if expectedVersion != "" {
		if err := m.checkVersion(kind, key, expectedVersion); err != nil {
			return err
		}
	}

	deleted := cloneAttrs(item)
	now := m.now()
	deleted[attrTTL] = ttlValue(now)
	deleted[attrVersion] = &types.AttributeValueMemberS{Value: uuid.New().String()}
	deleted[attrUpdatedAt] = &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)}
	m.rows[kind][key] = deleted
	return nil
}

// List snapshots the matching keys up front, then reads each row lazily,
// so concurrent writers may or may not be observed.
func (m *Memory) List(ctx context.Context, kind Kind, opts ...ListOption) iter.Seq2[*Row, error] {
	o := buildListOptions(opts)
	return func(yield func(*Row, error) bool) {
		m.mu.Lock()
		keys := make([]string, 0, len(m.rows[kind]))
		for k := range m.rows[kind] {
			keys = append(keys, k)
		}
		m.mu.Unlock()
		sort.Strings(keys)

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			row, err := m.Get(ctx, kind, key)
			if err != nil {
				continue
			}
			if !matches(row, o) {
				continue
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// checkVersion must be called with mu held.
func (m *Memory) checkVersion(kind Kind, key, expected string) error {
	item, ok := m.rows[kind][key]
	if !ok || IsDeleted(item) {
		return ErrNotFound
	}
	if v, _ := item[attrVersion].(*types.AttributeValueMemberS); v == nil || v.Value != expected {
		return ErrConcurrencyConflict
	}
	return nil
}

func memoryRow(kind Kind, key string, item map[string]types.AttributeValue) *Row {
	row := &Row{Kind: kind, Key: key, Attrs: cloneAttrs(item)}
	if v, ok := item[attrVersion].(*types.AttributeValueMemberS); ok {
		row.Version = v.Value
	}
	if v, ok := item[attrUpdatedAt].(*types.AttributeValueMemberS); ok {
		row.UpdatedAt = v.Value
	}
	return row
}

func matches(row *Row, o listOptions) bool {
	for _, eq := range o.equals {
		v, ok := row.Attrs[eq.attr].(*types.AttributeValueMemberS)
		if !ok || v.Value != eq.value {
			return false
		}
	}
	return true
}
