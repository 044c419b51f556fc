package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records inputs and replays canned responses.
type fakeAPI struct {
	getOut    *dynamodb.GetItemOutput
	putErr    error
	updateErr error
	pages     []*dynamodb.QueryOutput
	queryErr  error

	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput
}

func (f *fakeAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	i := len(f.queries) - 1
	if i >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.pages[i], nil
}

func item(kind Kind, key, version string, extra map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{
		attrPartition: &types.AttributeValueMemberS{Value: string(kind)},
		attrRow:       &types.AttributeValueMemberS{Value: key},
		attrVersion:   &types.AttributeValueMemberS{Value: version},
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func expiredTTL() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrTTL: &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(-time.Hour).Unix(), 10)},
	}
}

// --- unmarshalRow Tests ---

func TestUnmarshalRow_Full(t *testing.T) {
	s := New(nil, DefaultConfig())
	raw := item(KindProduct, "p-1", "v-1", map[string]types.AttributeValue{
		attrUpdatedAt: &types.AttributeValueMemberS{Value: "2026-01-02T03:04:05Z"},
		"name":        &types.AttributeValueMemberS{Value: "Lamp"},
	})

	row := s.unmarshalRow(raw)

	assert.Equal(t, KindProduct, row.Kind)
	assert.Equal(t, "p-1", row.Key)
	assert.Equal(t, "v-1", row.Version)
	assert.Equal(t, "2026-01-02T03:04:05Z", row.UpdatedAt)
	assert.Contains(t, row.Attrs, "name")
	for _, managed := range []string{attrPartition, attrRow, attrVersion, attrUpdatedAt} {
		assert.NotContains(t, row.Attrs, managed)
	}
}

func TestUnmarshalRow_WrongVersionType(t *testing.T) {
	s := New(nil, DefaultConfig())
	raw := item(KindOrder, "o-1", "", nil)
	raw[attrVersion] = &types.AttributeValueMemberN{Value: "3"}

	row := s.unmarshalRow(raw)
	assert.Empty(t, row.Version)
	assert.Equal(t, "o-1", row.Key)
}

// --- mapConditionError Tests ---

func TestMapConditionError(t *testing.T) {
	s := New(nil, DefaultConfig())
	other := errors.New("throttled")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "missing row",
			err:  &types.ConditionalCheckFailedException{Message: aws.String("failed")},
			want: ErrNotFound,
		},
		{
			name: "deleted row",
			err:  &types.ConditionalCheckFailedException{Item: item(KindProduct, "p-1", "v-2", expiredTTL())},
			want: ErrNotFound,
		},
		{
			name: "live row with other version",
			err:  &types.ConditionalCheckFailedException{Item: item(KindProduct, "p-1", "v-2", nil)},
			want: ErrConcurrencyConflict,
		},
		{
			name: "other error",
			err:  other,
			want: other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.mapConditionError(tt.err, KindProduct, "p-1"), tt.want)
		})
	}
}

// --- Store Tests ---

func TestStoreGet(t *testing.T) {
	ctx := context.Background()

	t.Run("missing", func(t *testing.T) {
		s := New(&fakeAPI{}, DefaultConfig())
		_, err := s.Get(ctx, KindCustomer, "c-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("deleted", func(t *testing.T) {
		api := &fakeAPI{getOut: &dynamodb.GetItemOutput{Item: item(KindCustomer, "c-1", "v-1", expiredTTL())}}
		_, err := New(api, DefaultConfig()).Get(ctx, KindCustomer, "c-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("live", func(t *testing.T) {
		api := &fakeAPI{getOut: &dynamodb.GetItemOutput{Item: item(KindCustomer, "c-1", "v-1", nil)}}
		row, err := New(api, DefaultConfig()).Get(ctx, KindCustomer, "c-1")
		require.NoError(t, err)
		assert.Equal(t, "v-1", row.Version)
	})
}

func TestStorePut_Unconditional(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, DefaultConfig())

	version, err := s.Put(context.Background(), &Row{
		Kind:  KindProduct,
		Key:   "p-1",
		Attrs: map[string]types.AttributeValue{"name": &types.AttributeValueMemberS{Value: "Lamp"}, attrTTL: &types.AttributeValueMemberN{Value: "1"}},
	}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, version)

	require.Len(t, api.puts, 1)
	in := api.puts[0]
	assert.Nil(t, in.ConditionExpression)
	assert.Equal(t, &types.AttributeValueMemberS{Value: version}, in.Item[attrVersion])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Product"}, in.Item[attrPartition])
	assert.NotContains(t, in.Item, attrTTL, "caller-supplied managed attributes are dropped")
}

func TestStorePut_Guarded(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, DefaultConfig())

	_, err := s.Put(context.Background(), &Row{Kind: KindProduct, Key: "p-1"}, "v-1")
	require.NoError(t, err)

	in := api.puts[0]
	require.NotNil(t, in.ConditionExpression)
	assert.True(t, strings.HasSuffix(*in.ConditionExpression, "#version = :expected_version"))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "v-1"}, in.ExpressionAttributeValues[":expected_version"])
	assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
}

func TestStorePut_Conflict(t *testing.T) {
	api := &fakeAPI{putErr: &types.ConditionalCheckFailedException{Item: item(KindProduct, "p-1", "v-9", nil)}}
	_, err := New(api, DefaultConfig()).Put(context.Background(), &Row{Kind: KindProduct, Key: "p-1"}, "v-1")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestStorePut_InvalidRow(t *testing.T) {
	s := New(&fakeAPI{}, DefaultConfig())
	_, err := s.Put(context.Background(), &Row{Kind: KindProduct}, "")
	assert.ErrorIs(t, err, ErrInvalidRow)
	_, err = s.Put(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrInvalidRow)
}

func TestStoreDelete(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, DefaultConfig())

	require.NoError(t, s.Delete(context.Background(), KindOrder, "o-1", "v-1"))
	require.Len(t, api.updates, 1)
	in := api.updates[0]
	assert.Contains(t, *in.UpdateExpression, "#ttl = :now")
	assert.Contains(t, *in.ConditionExpression, "#version = :expected_version")
	assert.Contains(t, in.ExpressionAttributeValues, ":next_version")

	api.updateErr = &types.ConditionalCheckFailedException{}
	assert.ErrorIs(t, s.Delete(context.Background(), KindOrder, "o-1", ""), ErrNotFound)
	assert.NotContains(t, *api.updates[1].ConditionExpression, "#version")
}

func TestQueryInput_Filters(t *testing.T) {
	s := New(nil, Config{Table: "t", PageSize: 10})
	in := s.queryInput(KindCustomer, buildListOptions([]ListOption{
		WhereEquals(AttrUsername, "ada"),
		WhereEquals("email", "ada@example.com"),
	}))

	assert.Equal(t, "#pk = :pk", *in.KeyConditionExpression)
	assert.Equal(t, "((attribute_not_exists(#ttl) OR #ttl > :now) AND #attr0 = :val0) AND #attr1 = :val1", *in.FilterExpression)
	assert.Equal(t, "username", in.ExpressionAttributeNames["#attr0"])
	assert.Equal(t, "email", in.ExpressionAttributeNames["#attr1"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "ada"}, in.ExpressionAttributeValues[":val0"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Customer"}, in.ExpressionAttributeValues[":pk"])
	assert.Equal(t, int32(10), *in.Limit)
}

func TestStoreList_Pages(t *testing.T) {
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item(KindProduct, "a", "v", nil), item(KindProduct, "b", "v", nil)},
			LastEvaluatedKey: item(KindProduct, "b", "", nil),
		},
		{
			Items: []map[string]types.AttributeValue{item(KindProduct, "c", "v", nil)},
		},
	}}
	s := New(api, DefaultConfig())

	var keys []string
	for row, err := range s.List(context.Background(), KindProduct) {
		require.NoError(t, err)
		keys = append(keys, row.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
	require.Len(t, api.queries, 2)
	assert.NotNil(t, api.queries[1].ExclusiveStartKey)
}

func TestStoreList_EarlyBreak(t *testing.T) {
	api := &fakeAPI{pages: []*dynamodb.QueryOutput{
		{
			Items:            []map[string]types.AttributeValue{item(KindProduct, "a", "v", nil), item(KindProduct, "b", "v", nil)},
			LastEvaluatedKey: item(KindProduct, "b", "", nil),
		},
	}}
	s := New(api, DefaultConfig())

	for range s.List(context.Background(), KindProduct) {
		break
	}
	assert.Len(t, api.queries, 1, "no further pages after the consumer stops")
}

func TestStoreList_Error(t *testing.T) {
	boom := errors.New("boom")
	s := New(&fakeAPI{queryErr: boom}, DefaultConfig())

	var got error
	for _, err := range s.List(context.Background(), KindProduct) {
		got = err
	}
	assert.ErrorIs(t, got, boom)
}

// --- Memory Tests ---

func TestMemory_VersionedWrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	v1, err := m.Put(ctx, &Row{Kind: KindProduct, Key: "p-1", Attrs: map[string]types.AttributeValue{
		"stock": &types.AttributeValueMemberN{Value: "5"},
	}}, "")
	require.NoError(t, err)

	v2, err := m.Put(ctx, &Row{Kind: KindProduct, Key: "p-1", Attrs: map[string]types.AttributeValue{
		"stock": &types.AttributeValueMemberN{Value: "4"},
	}}, v1)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2)

	// A writer holding the old token loses and leaves the row untouched.
	_, err = m.Put(ctx, &Row{Kind: KindProduct, Key: "p-1", Attrs: map[string]types.AttributeValue{
		"stock": &types.AttributeValueMemberN{Value: "0"},
	}}, v1)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	row, err := m.Get(ctx, KindProduct, "p-1")
	require.NoError(t, err)
	assert.Equal(t, v2, row.Version)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, row.Attrs["stock"])
}

func TestMemory_TwoWritersOneWins(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v0, err := m.Put(ctx, &Row{Kind: KindCustomer, Key: "c-1"}, "")
	require.NoError(t, err)

	a, _ := m.Get(ctx, KindCustomer, "c-1")
	b, _ := m.Get(ctx, KindCustomer, "c-1")
	require.Equal(t, v0, a.Version)
	require.Equal(t, v0, b.Version)

	_, errA := m.Put(ctx, a, a.Version)
	_, errB := m.Put(ctx, b, b.Version)
	assert.NoError(t, errA)
	assert.ErrorIs(t, errB, ErrConcurrencyConflict)
}

func TestMemory_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v, _ := m.Put(ctx, &Row{Kind: KindOrder, Key: "o-1"}, "")
	_, _ = m.Put(ctx, &Row{Kind: KindOrder, Key: "o-2"}, "")

	assert.ErrorIs(t, m.Delete(ctx, KindOrder, "o-1", "stale"), ErrConcurrencyConflict)
	require.NoError(t, m.Delete(ctx, KindOrder, "o-1", v))
	assert.ErrorIs(t, m.Delete(ctx, KindOrder, "o-1", ""), ErrNotFound)

	_, err := m.Get(ctx, KindOrder, "o-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Put(ctx, &Row{Kind: KindOrder, Key: "o-1"}, v)
	assert.ErrorIs(t, err, ErrNotFound)

	var keys []string
	for row, err := range m.List(ctx, KindOrder) {
		require.NoError(t, err)
		keys = append(keys, row.Key)
	}
	assert.Equal(t, []string{"o-2"}, keys)
}

func TestMemory_ListWhereEquals(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for key, user := range map[string]string{"c-1": "ada", "c-2": "alan", "c-3": "ada"} {
		_, err := m.Put(ctx, &Row{Kind: KindCustomer, Key: key, Attrs: map[string]types.AttributeValue{
			AttrUsername: &types.AttributeValueMemberS{Value: user},
		}}, "")
		require.NoError(t, err)
	}

	var keys []string
	for row, err := range m.List(ctx, KindCustomer, WhereEquals(AttrUsername, "ada")) {
		require.NoError(t, err)
		keys = append(keys, row.Key)
	}
	assert.Equal(t, []string{"c-1", "c-3"}, keys)
}

func TestMemory_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Get(ctx, KindCustomer, "c-1")
	assert.ErrorIs(t, err, context.Canceled)
}
