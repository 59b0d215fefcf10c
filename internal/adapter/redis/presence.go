package redis

import (
	"context"
	"fmt"
	"slices"
	"strconv"
)

// onlineUsersKey holds the set of user IDs with at least one live websocket
// connection. A redis set survives process restarts and is shared if more
// than one instance ever fronts the registry.
const onlineUsersKey = "presence:online_users"

// PresenceStore tracks which users are online. The connection registry
// drives it: a user's first connection marks them online, their last one
// marks them offline.
type PresenceStore struct {
	client *Client
}

func NewPresenceStore(client *Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func (p *PresenceStore) SetOnline(ctx context.Context, userID int64) error {
	if err := p.client.rdb.SAdd(ctx, onlineUsersKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to mark user online: %w", err)
	}
	return nil
}

func (p *PresenceStore) SetOffline(ctx context.Context, userID int64) error {
	if err := p.client.rdb.SRem(ctx, onlineUsersKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to mark user offline: %w", err)
	}
	return nil
}

// OnlineUsers returns every online user ID, sorted for stable responses.
func (p *PresenceStore) OnlineUsers(ctx context.Context) ([]int64, error) {
	members, err := p.client.rdb.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read online users: %w", err)
	}

	users := make([]int64, 0, len(members))
	for _, member := range members {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	slices.Sort(users)
	return users, nil
}

func (p *PresenceStore) IsOnline(ctx context.Context, userID int64) (bool, error) {
	online, err := p.client.rdb.SIsMember(ctx, onlineUsersKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check user presence: %w", err)
	}
	return online, nil
}
