package state

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"videowall/internal/registry"
	"videowall/pkg/logging"
)

const (
	clientKeyPrefix = "bosun:clients:"
	groupKeyPrefix  = "bosun:groups:"
)

// SnapshotStore mirrors the registry tables into Redis as JSON, one key per
// entity. The mirror is best-effort: the in-memory tables stay the source
// of truth and the snapshot only seeds them after a restart.
type SnapshotStore struct {
	client goredis.UniversalClient
	logger logging.Logger
}

// NewSnapshotStore wraps an established Redis connection.
func NewSnapshotStore(client goredis.UniversalClient, logger logging.Logger) *SnapshotStore {
	return &SnapshotStore{client: client, logger: logger}
}

func clientKey(clientID string) string { return clientKeyPrefix + clientID }
func groupKey(groupID string) string   { return groupKeyPrefix + groupID }

// SaveAll overwrites the mirror with the given state. Clients and groups
// sync concurrently, and keys for entities that no longer exist are pruned
// so deletions survive a restart too.
func (s *SnapshotStore) SaveAll(ctx context.Context, st registry.State) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.syncClients(ctx, st.Clients) })
	eg.Go(func() error { return s.syncGroups(ctx, st.Groups) })
	return eg.Wait()
}

func (s *SnapshotStore) syncClients(ctx context.Context, clients []registry.Client) error {
	keep := make(map[string]struct{}, len(clients))
	for i := range clients {
		c := &clients[i]
		keep[c.ID] = struct{}{}
		payload, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, clientKey(c.ID), payload, 0).Err(); err != nil {
			return err
		}
	}
	return s.pruneAbsent(ctx, clientKeyPrefix, keep)
}

func (s *SnapshotStore) syncGroups(ctx context.Context, groups []registry.Group) error {
	keep := make(map[string]struct{}, len(groups))
	for i := range groups {
		g := &groups[i]
		keep[g.ID] = struct{}{}
		payload, err := json.Marshal(g)
		if err != nil {
			return err
		}
		if err := s.client.Set(ctx, groupKey(g.ID), payload, 0).Err(); err != nil {
			return err
		}
	}
	return s.pruneAbsent(ctx, groupKeyPrefix, keep)
}

// pruneAbsent deletes every key under prefix whose ID is not in keep.
func (s *SnapshotStore) pruneAbsent(ctx context.Context, prefix string, keep map[string]struct{}) error {
	cursor := uint64(0)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			id := strings.TrimPrefix(key, prefix)
			if _, ok := keep[id]; ok {
				continue
			}
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Load reads the full mirror back, skipping entries that fail to parse so
// one corrupt key cannot block a restart.
func (s *SnapshotStore) Load(ctx context.Context) (registry.State, error) {
	clients, err := scanSnapshotMap(ctx, s, clientKeyPrefix+"*", func(data string) (registry.Client, string, error) {
		var c registry.Client
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return registry.Client{}, "", err
		}
		return c, c.ID, nil
	})
	if err != nil {
		return registry.State{}, err
	}
	groups, err := scanSnapshotMap(ctx, s, groupKeyPrefix+"*", func(data string) (registry.Group, string, error) {
		var g registry.Group
		if err := json.Unmarshal([]byte(data), &g); err != nil {
			return registry.Group{}, "", err
		}
		return g, g.ID, nil
	})
	if err != nil {
		return registry.State{}, err
	}

	st := registry.State{
		Clients: make([]registry.Client, 0, len(clients)),
		Groups:  make([]registry.Group, 0, len(groups)),
	}
	for _, c := range clients {
		st.Clients = append(st.Clients, c)
	}
	for _, g := range groups {
		st.Groups = append(st.Groups, g)
	}
	sort.Slice(st.Clients, func(i, j int) bool { return st.Clients[i].ID < st.Clients[j].ID })
	sort.Slice(st.Groups, func(i, j int) bool { return st.Groups[i].ID < st.Groups[j].ID })
	return st, nil
}

type snapshotParser[T any] func(data string) (T, string, error)

func scanSnapshotMap[T any](ctx context.Context, s *SnapshotStore, pattern string, parser snapshotParser[T]) (map[string]T, error) {
	cursor := uint64(0)
	result := make(map[string]T)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			value, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if s.logger != nil {
					s.logger.WithError(err).WithField("key", key).Warn("Failed to GET redis key during snapshot scan")
				}
				continue
			}
			parsed, resultKey, err := parser(value)
			if err != nil {
				if s.logger != nil {
					s.logger.WithError(err).WithField("key", key).Warn("Skipping corrupt snapshot entry")
				}
				continue
			}
			if resultKey == "" {
				continue
			}
			result[resultKey] = parsed
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return result, nil
}
