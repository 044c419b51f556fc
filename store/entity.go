package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Kind is the fixed partition key of an entity type.
type Kind string

const (
	KindCustomer Kind = "Customer"
	KindProduct  Kind = "Product"
	KindOrder    Kind = "Order"
)

// Managed attribute names. User attributes with these names are ignored on write.
const (
	attrPartition = "pk"
	attrRow       = "rk"
	attrVersion   = "version"
	attrUpdatedAt = "updated_at"
	attrTTL       = "ttl"
)

// Row is a single record in the entity table, addressed by (Kind, Key).
type Row struct {
	// Kind is the partition key.
	Kind Kind

	// Key is the row key, unique within the partition and immutable.
	Key string

	// Version is the opaque token assigned by the store on every write.
	// It is empty for rows that were never persisted.
	Version string

	// UpdatedAt is the RFC 3339 timestamp of the last write.
	UpdatedAt string

	// Attrs holds the kind-specific attributes.
	Attrs map[string]types.AttributeValue
}

// Entity is implemented by the typed entity kinds.
type Entity interface {
	// Kind returns the partition this entity lives in.
	Kind() Kind

	// ID returns the row key.
	ID() string

	// ToRow encodes the entity for storage.
	ToRow() (*Row, error)
}

// Record constrains a pointer to an entity that can decode itself from a Row.
type Record[T any] interface {
	*T
	Entity
	FromRow(*Row) error
}

// Decode converts a row into the typed entity T.
func Decode[T any, P Record[T]](row *Row) (T, error) {
	var v T
	if err := P(&v).FromRow(row); err != nil {
		return v, err
	}
	return v, nil
}

// encodeRow marshals a dynamodbav-tagged record into a row for the given key.
func encodeRow(kind Kind, key, version string, record any) (*Row, error) {
	if key == "" {
		return nil, ErrInvalidRow
	}
	attrs, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return &Row{Kind: kind, Key: key, Version: version, Attrs: attrs}, nil
}

// decodeRow unmarshals row attributes into a dynamodbav-tagged record.
func decodeRow(kind Kind, row *Row, record any) error {
	if row == nil {
		return ErrNotFound
	}
	if row.Kind != kind {
		return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, kind, row.Kind)
	}
	if err := attributevalue.UnmarshalMap(row.Attrs, record); err != nil {
		return fmt.Errorf("unmarshal %s %s: %w", kind, row.Key, err)
	}
	return nil
}

// isManaged reports whether an attribute is owned by the store.
func isManaged(name string) bool {
	switch name {
	case attrPartition, attrRow, attrVersion, attrUpdatedAt, attrTTL:
		return true
	}
	return false
}

// cloneAttrs copies user attributes, dropping store-managed ones.
func cloneAttrs(attrs map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(attrs))
	for k, v := range attrs {
		if isManaged(k) {
			continue
		}
		out[k] = v
	}
	return out
}
