package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// RoomTTL bounds how long an abandoned room key can linger; every
	// membership mutation refreshes it.
	RoomTTL = 2 * time.Hour
	// GameTTL covers the handoff window to the gameplay layer.
	GameTTL = 24 * time.Hour
)

// RedisStore is the networked RoomStore for multi-instance deployments. Code
// reservation uses SETNX; membership and queue mutations run inside WATCH
// transactions with a retry loop, so the check-and-mutate of every operation
// is atomic across server processes.
type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func roomKey(code string) string      { return "room:" + code }
func queueKey(gameType string) string { return "queue:" + gameType }
func gameKey(gameID string) string    { return "game:" + gameID }

func (s *RedisStore) CreateRoom(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomRoomCode()

		ok, err := s.redis.SetNX(ctx, roomKey(code), "[]", RoomTTL).Result()
		if err != nil {
			log.Error().Err(err).Msg("Failed to reserve room code.")
			return "", storeErr(err)
		}
		if ok {
			return code, nil
		}
	}
	log.Error().Msg("Room code space exhausted.")
	return "", fmt.Errorf("%w: no free room codes", ErrStoreUnavailable)
}

func (s *RedisStore) JoinRoom(ctx context.Context, code string, member Member) (JoinResult, error) {
	key := roomKey(code)

	var result JoinResult

	for {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			members, err := readMembers(ctx, tx, key)
			if err != nil {
				return err
			}

			// A session re-joining its own room keeps its single seat.
			for i, m := range members {
				if m.SessionID == member.SessionID {
					result = JoinResult{PlayerNumber: i + 1, Members: members}
					return nil
				}
			}

			if len(members) >= RoomCapacity {
				return ErrRoomFull
			}

			members = append(members, member)
			updated, _ := json.Marshal(members)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, RoomTTL)
				return nil
			})
			if err == nil {
				result = JoinResult{
					PlayerNumber: len(members),
					Members:      members,
					BecameFull:   len(members) == RoomCapacity,
				}
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, ErrRoomNotFound) || errors.Is(err, ErrRoomFull) {
			return JoinResult{}, err
		}
		if err != nil {
			log.Error().Err(err).Str("room", code).Msg("Failed to join room.")
			return JoinResult{}, storeErr(err)
		}
		return result, nil
	}
}

func (s *RedisStore) LeaveRoom(ctx context.Context, code, sessionID string) (LeaveResult, error) {
	key := roomKey(code)

	var result LeaveResult

	for {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			members, err := readMembers(ctx, tx, key)
			if err != nil {
				return err
			}

			remaining, removed := withoutSession(members, sessionID)
			if !removed {
				result = LeaveResult{Members: members}
				return nil
			}

			if len(remaining) == 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err == nil {
					result = LeaveResult{Removed: true, Deleted: true}
				}
				return err
			}

			updated, _ := json.Marshal(remaining)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, RoomTTL)
				return nil
			})
			if err == nil {
				result = LeaveResult{Members: remaining, Removed: true}
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if errors.Is(err, ErrRoomNotFound) {
			// Room already gone; leaving twice is a no-op.
			return LeaveResult{}, nil
		}
		if err != nil {
			log.Error().Err(err).Str("room", code).Msg("Failed to leave room.")
			return LeaveResult{}, storeErr(err)
		}
		return result, nil
	}
}

func (s *RedisStore) Members(ctx context.Context, code string) ([]Member, error) {
	raw, err := s.redis.Get(ctx, roomKey(code)).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, storeErr(err)
	}
	return members, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, gameType string, member Member, threshold int) ([]Member, error) {
	key := queueKey(gameType)

	var batch []Member

	for {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			vals, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			queued, err := decodeQueued(vals)
			if err != nil {
				return err
			}

			if containsSession(queued, member.SessionID) {
				batch = nil
				return nil
			}

			remaining, formed := formBatch(queued, member, threshold)
			if formed == nil {
				data, _ := json.Marshal(member)
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.RPush(ctx, key, data)
					return nil
				})
				batch = nil
				return err
			}

			// The batch pops strictly from the head; anything left over
			// (only possible after a crashed trim) is rewritten in order.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				for _, m := range remaining {
					data, _ := json.Marshal(m)
					pipe.RPush(ctx, key, data)
				}
				return nil
			})
			if err == nil {
				batch = formed
			}
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("gameType", gameType).Msg("Failed to enqueue for matchmaking.")
			return nil, storeErr(err)
		}
		return batch, nil
	}
}

func (s *RedisStore) DequeueSession(ctx context.Context, gameType, sessionID string) error {
	key := queueKey(gameType)

	for {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			vals, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}

			queued, err := decodeQueued(vals)
			if err != nil {
				return err
			}
			remaining, removed := withoutSession(queued, sessionID)
			if !removed {
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				for _, m := range remaining {
					data, _ := json.Marshal(m)
					pipe.RPush(ctx, key, data)
				}
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("gameType", gameType).Msg("Failed to dequeue session.")
			return storeErr(err)
		}
		return nil
	}
}

func (s *RedisStore) CreateGame(ctx context.Context, members []Member) (string, error) {
	gameID := newGameID()

	data, err := json.Marshal(members)
	if err != nil {
		return "", storeErr(err)
	}
	if err := s.redis.Set(ctx, gameKey(gameID), data, GameTTL).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to save game to Redis.")
		return "", storeErr(err)
	}
	return gameID, nil
}

func (s *RedisStore) Game(ctx context.Context, gameID string) ([]Member, error) {
	raw, err := s.redis.Get(ctx, gameKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, storeErr(err)
	}
	return members, nil
}

func readMembers(ctx context.Context, tx *redis.Tx, key string) ([]Member, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}

	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func decodeQueued(vals []string) ([]Member, error) {
	members := make([]Member, 0, len(vals))
	for _, v := range vals {
		var m Member
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
