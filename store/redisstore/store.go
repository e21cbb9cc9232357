// Package redisstore implements store.Store on Redis, standalone or cluster.
//
// Layout under the configured prefix, per user u:
//
//	{u}:rt:<hex>  hash with id, user, hash, iat, exp, revoked, replaced, gen
//	{u}:rtu       set of the user's token hashes
//	{u}:rtg       revoke-all generation counter
//
// plus two pointers for lookups that only know a hash or an id:
//
//	rth:<hex>     token hash -> user
//	rti:<id>      record id -> "<hex>:<user>"
//
// The braces are a cluster hash tag: every key a script touches belongs to
// one user and therefore one slot. Rotation and revoke-all run as Lua
// scripts, so each is a single atomic step on the server. Record keys live
// for the token lifetime plus the retention window, which keeps rotated
// records around long enough for replay detection.
package redisstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const minRecordTTL = time.Second

// Store is a Redis-backed refresh-token store.
//
//	Performance: one script round trip for Create, Rotate and RevokeAllForUser,
//	plus one pipelined pointer write on Create and Rotate.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

var _ store.Store = (*Store)(nil)

// NewStore creates a [Store] on the given client. prefix namespaces every
// key ("gs" when empty); retention extends record lifetime past expiry.
func NewStore(client redis.UniversalClient, prefix string, retention time.Duration) *Store {
	if prefix == "" {
		prefix = "gs"
	}
	if retention < 0 {
		retention = 0
	}
	return &Store{
		redis:     client,
		prefix:    prefix + ":",
		retention: retention,
	}
}

func (s *Store) userScope(userID string) string {
	return s.prefix + "{" + userID + "}:"
}

func (s *Store) recordKey(userID string, h store.Hash) string {
	return s.recordKeyHex(userID, h.String())
}

func (s *Store) recordKeyHex(userID, hexHash string) string {
	return s.userScope(userID) + "rt:" + hexHash
}

func (s *Store) userKey(userID string) string {
	return s.userScope(userID) + "rtu"
}

func (s *Store) generationKey(userID string) string {
	return s.userScope(userID) + "rtg"
}

func (s *Store) hashPointerKey(h store.Hash) string {
	return s.prefix + "rth:" + h.String()
}

func (s *Store) idPointerKey(id string) string {
	return s.prefix + "rti:" + id
}

func (s *Store) ttl(issuedAt, expiresAt time.Time) time.Duration {
	ttl := expiresAt.Sub(issuedAt) + s.retention
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}
	return ttl
}

// writePointers stores the hash and id lookups for a record about to be
// written. A pointer whose record never lands resolves to ErrNotFound.
func (s *Store) writePointers(ctx context.Context, userID, id string, h store.Hash, ttl time.Duration) error {
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.hashPointerKey(h), userID, ttl)
		pipe.Set(ctx, s.idPointerKey(id), h.String()+":"+userID, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// ownerOf resolves the user holding tokenHash.
func (s *Store) ownerOf(ctx context.Context, tokenHash store.Hash) (string, error) {
	userID, err := s.redis.Get(ctx, s.hashPointerKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return userID, nil
}

// locate resolves a record id to its user and token hash.
func (s *Store) locate(ctx context.Context, id string) (userID, hexHash string, err error) {
	v, err := s.redis.Get(ctx, s.idPointerKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", store.ErrNotFound
		}
		return "", "", fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	hexHash, userID, ok := strings.Cut(v, ":")
	if !ok || len(hexHash) != hex.EncodedLen(len(store.Hash{})) {
		return "", "", fmt.Errorf("%w: %s: bad id pointer", errCorruptRecord, id)
	}
	return userID, hexHash, nil
}

// Create persists a new record through one script call.
func (s *Store) Create(ctx context.Context, userID string, tokenHash store.Hash, issuedAt, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	ttl := s.ttl(issuedAt, expiresAt)
	if err := s.writePointers(ctx, userID, id, tokenHash, ttl); err != nil {
		return "", err
	}
	res, err := createLua.Run(ctx, s.redis,
		[]string{s.recordKey(userID, tokenHash), s.userKey(userID), s.generationKey(userID)},
		id, userID, tokenHash.String(), issuedAt.UnixMilli(), expiresAt.UnixMilli(), ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(res) == 0 {
		return "", fmt.Errorf("%w: empty create reply", store.ErrUnavailable)
	}
	if code, _ := res[0].(int64); code == createStatusDuplicate {
		return "", store.ErrDuplicate
	}
	return id, nil
}

// FindActive resolves the record and checks it against the owner's
// generation.
//
//	Performance: 3 Redis reads.
func (s *Store) FindActive(ctx context.Context, tokenHash store.Hash, now time.Time) (*store.Record, error) {
	rec, err := s.FindByHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	generation, err := s.generation(ctx, rec.UserID)
	if err != nil {
		return nil, err
	}
	if !rec.ActiveAt(now, generation) {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

// FindByHash returns the record in any state.
func (s *Store) FindByHash(ctx context.Context, tokenHash store.Hash) (*store.Record, error) {
	userID, err := s.ownerOf(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, s.recordKey(userID, tokenHash))
}

func (s *Store) load(ctx context.Context, key string) (*store.Record, error) {
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeRecord(fields)
}

func (s *Store) generation(ctx context.Context, userID string) (uint64, error) {
	gen, err := s.redis.Get(ctx, s.generationKey(userID)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return gen, nil
}

// Revoke marks one record revoked, keeping the first revocation time.
func (s *Store) Revoke(ctx context.Context, recordID string, now time.Time) error {
	userID, hexHash, err := s.locate(ctx, recordID)
	if err != nil {
		return err
	}
	found, err := revokeLua.Run(ctx, s.redis, []string{s.recordKeyHex(userID, hexHash)}, now.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if found == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RevokeAllForUser bumps the generation and revokes the user's records in
// one script. Records added after the member read are still cut off by the
// generation bump. Stale hashes left by expired records are pruned from the
// user set on the way.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	keys := make([]string, 0, len(members)+2)
	keys = append(keys, s.userKey(userID), s.generationKey(userID))
	args := make([]interface{}, 0, len(members)+1)
	args = append(args, now.UnixMilli())
	for _, hexHash := range members {
		keys = append(keys, s.recordKeyHex(userID, hexHash))
		args = append(args, hexHash)
	}

	n, err := revokeAllLua.Run(ctx, s.redis, keys, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return int(n), nil
}

// LinkReplacement sets replaced on the old record. Both records must belong
// to the same user.
func (s *Store) LinkReplacement(ctx context.Context, oldID, newID string) error {
	oldUser, oldHash, err := s.locate(ctx, oldID)
	if err != nil {
		return err
	}
	newUser, newHash, err := s.locate(ctx, newID)
	if err != nil {
		return err
	}
	if oldUser != newUser {
		return store.ErrNotFound
	}
	ok, err := linkLua.Run(ctx, s.redis,
		[]string{s.recordKeyHex(oldUser, oldHash), s.recordKeyHex(newUser, newHash)},
		newID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if ok == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Rotate runs the compare-and-set rotation script inside the owner's slot.
// req.UserID routes the call; without it the owner is read from the hash
// pointer first.
//
//	Performance: 1 pipelined pointer write + 1 EVALSHA.
func (s *Store) Rotate(ctx context.Context, req store.RotateRequest) (*store.Record, error) {
	userID := req.UserID
	if userID == "" {
		owner, err := s.ownerOf(ctx, req.OldHash)
		if err != nil {
			return nil, err
		}
		userID = owner
	}

	ttl := s.ttl(req.IssuedAt, req.ExpiresAt)
	if err := s.writePointers(ctx, userID, req.NewID, req.NewHash, ttl); err != nil {
		return nil, err
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{
			s.recordKey(userID, req.OldHash),
			s.recordKey(userID, req.NewHash),
			s.userKey(userID),
			s.generationKey(userID),
		},
		req.NewID, userID, req.NewHash.String(),
		req.IssuedAt.UnixMilli(), req.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(), req.Now.UnixMilli(),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty rotate reply", store.ErrUnavailable)
	}

	code, _ := res[0].(int64)
	switch code {
	case rotateStatusNotFound:
		return nil, store.ErrNotFound
	case rotateStatusDuplicate:
		return nil, store.ErrDuplicate
	}

	rec, err := decodeReply(res)
	if err != nil {
		return nil, err
	}
	switch code {
	case rotateStatusRotated:
		return rec, nil
	case rotateStatusReused:
		return rec, store.ErrReused
	case rotateStatusRevoked:
		return rec, store.ErrRevoked
	case rotateStatusExpired:
		return rec, store.ErrExpired
	default:
		return nil, fmt.Errorf("%w: unexpected rotate status %d", store.ErrUnavailable, code)
	}
}

// ListActive loads every record in the user set and filters on the current
// generation. Missing records are skipped.
func (s *Store) ListActive(ctx context.Context, userID string, now time.Time) ([]store.Record, error) {
	members, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []store.Record{}, nil
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	generation, err := s.generation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return []store.Record{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, hexHash := range members {
		cmds[i] = pipe.HGetAll(ctx, s.recordKeyHex(userID, hexHash))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	out := make([]store.Record, 0, len(members))
	for _, cmd := range cmds {
		fields, cmdErr := cmd.Result()
		if cmdErr != nil || len(fields) == 0 {
			continue
		}
		rec, decErr := decodeRecord(fields)
		if decErr != nil {
			return nil, decErr
		}
		if rec.ActiveAt(now, generation) {
			out = append(out, *rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func sortNewestFirst(recs []store.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].IssuedAt.After(recs[j].IssuedAt)
	})
}

func decodeRecord(fields map[string]string) (*store.Record, error) {
	return buildRecord(fields["id"],
		fields["user"], fields["hash"], fields["iat"], fields["exp"],
		fields["revoked"], fields["replaced"], fields["gen"],
	)
}

// decodeReply reads {code, id, user, hash, iat, exp, revoked, replaced, gen}.
func decodeReply(res []interface{}) (*store.Record, error) {
	if len(res) < 9 {
		return nil, fmt.Errorf("%w: short rotate reply", store.ErrUnavailable)
	}
	str := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}
	return buildRecord(str(res[1]),
		str(res[2]), str(res[3]), str(res[4]), str(res[5]),
		str(res[6]), str(res[7]), str(res[8]),
	)
}

var errCorruptRecord = errors.New("corrupt refresh record")

func buildRecord(id, user, hash, iat, exp, revoked, replaced, gen string) (*store.Record, error) {
	if user == "" {
		return nil, store.ErrNotFound
	}
	rec := &store.Record{ID: id, UserID: user, ReplacedBy: replaced}

	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != len(rec.TokenHash) {
		return nil, fmt.Errorf("%w: %s: bad hash", errCorruptRecord, id)
	}
	copy(rec.TokenHash[:], raw)

	if rec.IssuedAt, err = parseMillis(iat); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
	}
	if rec.ExpiresAt, err = parseMillis(exp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
	}
	if revoked != "" {
		at, err := parseMillis(revoked)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
		}
		rec.RevokedAt = &at
	}
	if gen != "" {
		if rec.Generation, err = strconv.ParseUint(gen, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
		}
	}
	return rec, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
