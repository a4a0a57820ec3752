// Package presence keeps per-user connection metadata and online status
// in Redis so other services can see who is reachable.
//
// Keys:
//   - <prefix>:conn:<userID>     set of connection meta JSON
//   - <prefix>:presence:<userID> JSON {status,last_seen}
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client *redis.Client
	prefix string
}

type ConnMeta struct {
	SocketID    string `json:"socket_id"`
	ConnectedAt int64  `json:"connected_at"`
}

func NewStore(r *redis.Client, prefix string) *Store {
	return &Store{client: r, prefix: prefix}
}

func (s *Store) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, userID)
}

func (s *Store) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

// AddConnection registers a connection for the user and marks them online.
func (s *Store) AddConnection(ctx context.Context, userID, socketID string, ttl time.Duration) error {
	meta := ConnMeta{SocketID: socketID, ConnectedAt: time.Now().Unix()}
	j, _ := json.Marshal(meta)
	if err := s.client.SAdd(ctx, s.connKey(userID), j).Err(); err != nil {
		return err
	}
	_ = s.client.Expire(ctx, s.connKey(userID), ttl).Err()
	pres := map[string]any{"status": "online", "last_seen": time.Now().Unix()}
	pb, _ := json.Marshal(pres)
	return s.client.Set(ctx, s.presenceKey(userID), pb, ttl).Err()
}

// RemoveConnection drops a connection; the user goes offline when it was
// their last one.
func (s *Store) RemoveConnection(ctx context.Context, userID, socketID string) error {
	key := s.connKey(userID)
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return err
	}
	for _, m := range members {
		var cm ConnMeta
		_ = json.Unmarshal([]byte(m), &cm)
		if cm.SocketID == socketID {
			_ = s.client.SRem(ctx, key, m).Err()
		}
	}
	cnt, _ := s.client.SCard(ctx, key).Result()
	if cnt == 0 {
		pres := map[string]any{"status": "offline", "last_seen": time.Now().Unix()}
		pb, _ := json.Marshal(pres)
		_ = s.client.Set(ctx, s.presenceKey(userID), pb, 0).Err()
	}
	return nil
}

// GetPresence returns the raw presence document for a user.
func (s *Store) GetPresence(ctx context.Context, userID string) (map[string]any, error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	_ = json.Unmarshal(b, &out)
	return out, nil
}
