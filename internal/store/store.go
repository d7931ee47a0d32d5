// Package store provides the single-table storage layer. All entity kinds
// share one physical table, disambiguated by PK/SK string prefixes, with
// four GSIs for alternate access paths (see internal/keys).
//
// TableStore is the interface the repositories program against. DynamoStore
// is the production implementation; MemoryStore backs tests and the local
// dev server. Both evaluate the same structured write conditions, so the
// conditional-write semantics the dispatcher relies on hold in tests too.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/facadelab/restyle/internal/apperr"
)

// Item is a raw table item. Repositories unmarshal items into domain
// structs and restore key-derived fields from PK/SK.
type Item = map[string]types.AttributeValue

// GSI index names. Query key attributes are <index>PK / <index>SK.
const (
	GSI1 = "GSI1"
	GSI2 = "GSI2"
	GSI3 = "GSI3"
	GSI4 = "GSI4"
)

// CondOp is a structured condition operator. Conditions are values rather
// than raw expression strings so the in-memory store can evaluate exactly
// what the DynamoDB store compiles.
type CondOp string

const (
	CondNotExists CondOp = "not_exists"
	CondEquals    CondOp = "equals"
	CondNotEquals CondOp = "not_equals"
)

// Condition guards a Put or Update. A failed condition surfaces as
// apperr.KindConflict.
type Condition struct {
	Attr  string
	Op    CondOp
	Value interface{}
}

// NotExists guards against overwriting an existing item (use attr "PK").
func NotExists(attr string) *Condition {
	return &Condition{Attr: attr, Op: CondNotExists}
}

// Equals requires attr == value.
func Equals(attr string, value interface{}) *Condition {
	return &Condition{Attr: attr, Op: CondEquals, Value: value}
}

// NotEquals requires attr != value. A missing attribute satisfies the
// condition in both backends.
func NotEquals(attr string, value interface{}) *Condition {
	return &Condition{Attr: attr, Op: CondNotEquals, Value: value}
}

// PutInput describes a full-item write.
type PutInput struct {
	PK string
	SK string
	// GSI holds sparse index key attributes, e.g. "GSI1PK"/"GSI1SK".
	GSI map[string]string
	// Data is marshaled into item attributes; key-derived fields should
	// carry dynamodbav:"-".
	Data interface{}
	// Condition, when set, guards the write. Ignored by BatchPut.
	Condition *Condition
}

// UpdateInput describes a partial update. At least one of Set/Add must be
// non-empty. The target item must already exist (apperr.KindNotFound
// otherwise).
type UpdateInput struct {
	PK string
	SK string
	// Set assigns attribute values (marshaled individually).
	Set map[string]interface{}
	// Add applies atomic numeric increments.
	Add map[string]int
	// Condition, when set, additionally guards the update.
	Condition *Condition
}

// QueryInput describes a range query, on the base table (Index == "") or
// a GSI. Results are ordered ascending by the index sort key.
type QueryInput struct {
	Index    string
	PK       string
	SKPrefix string
	Limit    int32
	Cursor   string
}

// TableStore is the storage primitive surface. All errors carry an
// apperr kind; raw SDK errors never escape.
type TableStore interface {
	// Get returns (item, true, nil) or (nil, false, nil) when absent.
	Get(ctx context.Context, pk, sk string) (Item, bool, error)

	// Put writes a full item, honoring the condition.
	Put(ctx context.Context, in PutInput) error

	// Update applies a partial update and returns the new item.
	Update(ctx context.Context, in UpdateInput) (Item, error)

	// Delete removes an item. Deleting an absent item is not an error.
	Delete(ctx context.Context, pk, sk string) error

	// Query pages through items; nextCursor is "" on the last page. The
	// cursor is opaque and resumable: repeated calls reproduce one ordered
	// stream with no duplicates or omissions over a static dataset.
	Query(ctx context.Context, in QueryInput) (items []Item, nextCursor string, err error)

	// BatchPut writes items best-effort in chunks, retrying unprocessed
	// items with backoff. Remaining failures surface as a PartialFailure
	// error listing the unprocessed keys.
	BatchPut(ctx context.Context, items []PutInput) error
}

// PartialFailure reports batch items that were not written after retries.
type PartialFailure struct {
	Keys []string // "PK/SK" per unprocessed item
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("batch write left %d unprocessed items", len(e.Keys))
}

// Unmarshal decodes a raw item into a domain struct, mapping decode
// failures to apperr.KindValidation.
func Unmarshal(item Item, out interface{}) error {
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return apperr.Wrap(apperr.KindValidation, "unmarshal item", err)
	}
	return nil
}

// StringAttr reads a string attribute from a raw item.
func StringAttr(item Item, name string) (string, bool) {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value, true
	}
	return "", false
}

// indexKeyNames returns the PK/SK attribute names for an index.
func indexKeyNames(index string) (pkAttr, skAttr string) {
	if index == "" {
		return "PK", "SK"
	}
	return index + "PK", index + "SK"
}

// --- Cursor encoding ---
//
// Cursors round-trip the query resume position as base64url JSON of
// string key attributes. All key attributes in this schema are strings.

func encodeCursor(key map[string]string) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "encode cursor", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]string, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "malformed cursor", err)
	}
	var key map[string]string
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "malformed cursor", err)
	}
	return key, nil
}

// marshalData marshals a domain struct and overlays the key attributes.
func marshalData(in PutInput) (Item, error) {
	item, err := attributevalue.MarshalMap(in.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("marshal item %s/%s", in.PK, in.SK), err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: in.PK}
	item["SK"] = &types.AttributeValueMemberS{Value: in.SK}
	for k, v := range in.GSI {
		if !strings.HasPrefix(k, "GSI") {
			return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("bad index attribute %q", k))
		}
		item[k] = &types.AttributeValueMemberS{Value: v}
	}
	return item, nil
}
