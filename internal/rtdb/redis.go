package rtdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each top-level collection in one hash: field is the
// direct child id, value the JSON of that child's whole subtree. Deeper
// paths are resolved inside the decoded row. Ordered queries sort
// client-side, which is fine at janitor scan sizes.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func collKey(collection string) string { return "rtdb:" + collection }

func (s *RedisStore) Get(ctx context.Context, path string) (any, error) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("root get is not supported")
	}
	if len(segs) == 1 {
		rows, err := s.rdb.HGetAll(ctx, collKey(segs[0])).Result()
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		out := make(map[string]any, len(rows))
		for id, raw := range rows {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				continue
			}
			out[id] = v
		}
		return out, nil
	}

	row, err := s.getRow(ctx, segs[0], segs[1])
	if err != nil || row == nil {
		return nil, err
	}
	if len(segs) == 2 {
		return row, nil
	}
	m, ok := row.(map[string]any)
	if !ok {
		return nil, nil
	}
	return descend(m, segs[2:]), nil
}

func (s *RedisStore) Put(ctx context.Context, path string, value any) error {
	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("root put is not supported")
	}
	if len(segs) == 1 {
		children, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("collection put requires an object value")
		}
		if err := s.rdb.Del(ctx, collKey(segs[0])).Err(); err != nil {
			return err
		}
		for id, child := range children {
			if err := s.setRow(ctx, segs[0], id, child); err != nil {
				return err
			}
		}
		return nil
	}
	if len(segs) == 2 {
		return s.setRow(ctx, segs[0], segs[1], value)
	}
	return s.mutateRow(ctx, segs[0], segs[1], func(row map[string]any) map[string]any {
		return setNested(row, segs[2:], value)
	})
}

func (s *RedisStore) Patch(ctx context.Context, path string, updates map[string]any) error {
	base := cleanPath(path)
	for rel, v := range updates {
		abs := cleanPath(rel)
		if base != "" {
			abs = base + "/" + abs
		}
		if IsRemove(v) {
			if err := s.Delete(ctx, abs); err != nil {
				return err
			}
			continue
		}
		segs := splitPath(abs)
		if len(segs) < 2 {
			return fmt.Errorf("patch path too shallow: %q", abs)
		}
		if len(segs) == 2 {
			if err := s.setRow(ctx, segs[0], segs[1], v); err != nil {
				return err
			}
			continue
		}
		err := s.mutateRow(ctx, segs[0], segs[1], func(row map[string]any) map[string]any {
			return setNested(row, segs[2:], v)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	segs := splitPath(path)
	switch len(segs) {
	case 0:
		return fmt.Errorf("root delete is not supported")
	case 1:
		return s.rdb.Del(ctx, collKey(segs[0])).Err()
	case 2:
		return s.rdb.HDel(ctx, collKey(segs[0]), segs[1]).Err()
	default:
		return s.mutateRow(ctx, segs[0], segs[1], func(row map[string]any) map[string]any {
			return deleteNested(row, segs[2:])
		})
	}
}

func (s *RedisStore) QueryChildren(ctx context.Context, path string, q Query) (map[string]any, error) {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	children, _ := raw.(map[string]any)
	if len(children) == 0 {
		return nil, nil
	}

	type pair struct {
		id  string
		val any
		key any
	}
	pairs := make([]pair, 0, len(children))
	for id, v := range children {
		var fieldVal any
		if m, ok := v.(map[string]any); ok {
			fieldVal = m[q.OrderBy]
		}
		if q.EqualTo != nil && compareValues(fieldVal, q.EqualTo) != 0 {
			continue
		}
		if q.EndAt != nil && compareValues(fieldVal, q.EndAt) > 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, val: v, key: fieldVal})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if c := compareValues(pairs[i].key, pairs[j].key); c != 0 {
			return c < 0
		}
		return pairs[i].id < pairs[j].id
	})
	if q.LimitToFirst > 0 && len(pairs) > q.LimitToFirst {
		pairs = pairs[:q.LimitToFirst]
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		out[p.id] = p.val
	}
	return out, nil
}

func (s *RedisStore) ShallowKeys(ctx context.Context, path string) ([]string, error) {
	segs := splitPath(path)
	if len(segs) == 1 {
		return s.rdb.HKeys(ctx, collKey(segs[0])).Result()
	}
	raw, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *RedisStore) getRow(ctx context.Context, collection, id string) (any, error) {
	raw, err := s.rdb.HGet(ctx, collKey(collection), id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var row any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, nil
	}
	return row, nil
}

func (s *RedisStore) setRow(ctx context.Context, collection, id string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, collKey(collection), id, raw).Err()
}

func (s *RedisStore) mutateRow(ctx context.Context, collection, id string, fn func(map[string]any) map[string]any) error {
	raw, err := s.getRow(ctx, collection, id)
	if err != nil {
		return err
	}
	// a malformed row is replaced wholesale by the mutation
	row, ok := raw.(map[string]any)
	if !ok {
		row = map[string]any{}
	}
	row = fn(row)
	if len(row) == 0 {
		return s.rdb.HDel(ctx, collKey(collection), id).Err()
	}
	return s.setRow(ctx, collection, id, row)
}

func descend(m map[string]any, segs []string) any {
	var cur any = m
	for _, seg := range segs {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = node[seg]
	}
	return cur
}

func setNested(row map[string]any, segs []string, v any) map[string]any {
	cur := row
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = v
	return row
}

func deleteNested(row map[string]any, segs []string) map[string]any {
	cur := row
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return row
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
	return row
}

// compareValues follows the store's child ordering: nil < bool <
// number < string, with false < true inside bools.
func compareValues(a, b any) int {
	ra, rb := orderRank(a), orderRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 1: // bool
		ba, bb := a.(bool), b.(bool)
		if ba == bb {
			return 0
		}
		if !ba {
			return -1
		}
		return 1
	case 2: // number
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	case 3: // string
		return strings.Compare(a.(string), b.(string))
	default:
		return 0
	}
}

func orderRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
