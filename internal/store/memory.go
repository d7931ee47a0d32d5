package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/facadelab/restyle/internal/apperr"
)

// MemoryStore is an in-memory TableStore for tests and the local dev
// server. It evaluates the same conditions and produces the same ordering
// and cursor behavior as DynamoStore over a single table.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]map[string]Item // pk -> sk -> item
}

var _ TableStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]map[string]Item)}
}

func (s *MemoryStore) Get(ctx context.Context, pk, sk string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[pk][sk]
	if !ok {
		return nil, false, nil
	}
	return cloneItem(item), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, in PutInput) error {
	item, err := marshalData(in)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.items[in.PK][in.SK]
	if in.Condition != nil {
		ok, err := evalCondition(existing, in.Condition)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindConflict, fmt.Sprintf("condition failed for %s/%s", in.PK, in.SK))
		}
	}

	if s.items[in.PK] == nil {
		s.items[in.PK] = make(map[string]Item)
	}
	s.items[in.PK][in.SK] = item
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, in UpdateInput) (Item, error) {
	if len(in.Set) == 0 && len(in.Add) == 0 {
		return nil, apperr.New(apperr.KindValidation, "update with no attribute changes")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.items[in.PK][in.SK]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("item %s/%s not found", in.PK, in.SK))
	}
	if in.Condition != nil {
		pass, err := evalCondition(existing, in.Condition)
		if err != nil {
			return nil, err
		}
		if !pass {
			return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("condition failed for %s/%s", in.PK, in.SK))
		}
	}

	updated := cloneItem(existing)
	for attr, val := range in.Set {
		av, err := attributevalue.Marshal(val)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("marshal attribute %q", attr), err)
		}
		updated[attr] = av
	}
	for attr, delta := range in.Add {
		current := 0
		if n, ok := updated[attr].(*types.AttributeValueMemberN); ok {
			parsed, err := strconv.Atoi(n.Value)
			if err != nil {
				return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("attribute %q is not numeric", attr))
			}
			current = parsed
		}
		updated[attr] = &types.AttributeValueMemberN{Value: strconv.Itoa(current + delta)}
	}

	s.items[in.PK][in.SK] = updated
	return cloneItem(updated), nil
}

func (s *MemoryStore) Delete(ctx context.Context, pk, sk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items[pk], sk)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, in QueryInput) ([]Item, string, error) {
	pkAttr, skAttr := indexKeyNames(in.Index)

	startKey, err := decodeCursor(in.Cursor)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Collect matches with their ordering tuple: the index sort key,
	// tie-broken by the base keys (matching how a GSI projects them).
	type entry struct {
		sortKey string
		pk, sk  string
		item    Item
	}
	var matches []entry
	for pk, bySk := range s.items {
		for sk, item := range bySk {
			idxPK, ok := StringAttr(item, pkAttr)
			if !ok || idxPK != in.PK {
				continue
			}
			idxSK, ok := StringAttr(item, skAttr)
			if !ok {
				continue
			}
			if in.SKPrefix != "" && !hasPrefix(idxSK, in.SKPrefix) {
				continue
			}
			matches = append(matches, entry{sortKey: idxSK, pk: pk, sk: sk, item: item})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].sortKey != matches[j].sortKey {
			return matches[i].sortKey < matches[j].sortKey
		}
		if matches[i].pk != matches[j].pk {
			return matches[i].pk < matches[j].pk
		}
		return matches[i].sk < matches[j].sk
	})

	// Resume after the cursor position.
	if startKey != nil {
		afterSort := startKey[skAttr]
		afterPK := startKey["PK"]
		afterSK := startKey["SK"]
		idx := sort.Search(len(matches), func(i int) bool {
			m := matches[i]
			if m.sortKey != afterSort {
				return m.sortKey > afterSort
			}
			if m.pk != afterPK {
				return m.pk > afterPK
			}
			return m.sk > afterSK
		})
		matches = matches[idx:]
	}

	limit := len(matches)
	if in.Limit > 0 && int(in.Limit) < limit {
		limit = int(in.Limit)
	}

	items := make([]Item, 0, limit)
	for _, m := range matches[:limit] {
		items = append(items, cloneItem(m.item))
	}

	nextCursor := ""
	if limit < len(matches) {
		last := matches[limit-1]
		key := map[string]string{"PK": last.pk, "SK": last.sk}
		if in.Index != "" {
			key[pkAttr] = in.PK
			key[skAttr] = last.sortKey
		}
		nextCursor, err = encodeCursor(key)
		if err != nil {
			return nil, "", err
		}
	}
	return items, nextCursor, nil
}

func (s *MemoryStore) BatchPut(ctx context.Context, items []PutInput) error {
	for _, in := range items {
		in.Condition = nil
		if err := s.Put(ctx, in); err != nil {
			return err
		}
	}
	return nil
}

// --- Helpers ---

func evalCondition(item Item, c *Condition) (bool, error) {
	var current types.AttributeValue
	if item != nil {
		current = item[c.Attr]
	}
	switch c.Op {
	case CondNotExists:
		return current == nil, nil
	case CondEquals, CondNotEquals:
		want, err := attributevalue.Marshal(c.Value)
		if err != nil {
			return false, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("marshal condition value for %q", c.Attr), err)
		}
		equal := current != nil && reflect.DeepEqual(current, want)
		if c.Op == CondEquals {
			return equal, nil
		}
		return !equal, nil
	default:
		return false, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown condition op %q", c.Op))
	}
}

func cloneItem(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
