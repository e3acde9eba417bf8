package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/jobctl/internal/model"
)

var _ JobStore = (*RedisStore)(nil)

// RedisStore keeps each job in a hash and maintains sorted-set indices
// scored by numeric id:
//
//	<prefix>:job:<id>            hash with the job fields
//	<prefix>:job:<id>:log        list of log lines
//	<prefix>:jobs                every job
//	<prefix>:jobs:<state>        jobs in a state
//	<prefix>:jobs:<type>:<state> jobs of a type in a state
//	<prefix>:job:types           set of every type seen
//	<prefix>:stats:work-time     cumulative work time in ms
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix defaults to "q".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "q"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) jobKey(id string) string { return s.key("job", id) }
func (s *RedisStore) logKey(id string) string { return s.key("job", id, "log") }

func (s *RedisStore) indexKey(jobType string, state model.JobState) string {
	switch {
	case jobType != "" && state != "":
		return s.key("jobs", jobType, string(state))
	case state != "":
		return s.key("jobs", string(state))
	default:
		return s.key("jobs")
	}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return jobFromMap(id, fields)
}

func (s *RedisStore) Save(ctx context.Context, job *model.Job) error {
	now := time.Now().UTC()

	var prevState model.JobState
	var prevType string
	if job.ID == "" {
		n, err := s.client.Incr(ctx, s.key("ids")).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate job id: %w", err)
		}
		job.ID = strconv.FormatInt(n, 10)
		initJob(job)
		job.CreatedAt = now
	} else {
		vals, err := s.client.HMGet(ctx, s.jobKey(job.ID), "state", "type").Result()
		if err != nil {
			return fmt.Errorf("failed to read job: %w", err)
		}
		st, ok := vals[0].(string)
		if !ok {
			return ErrJobNotFound
		}
		prevState = model.JobState(st)
		prevType, _ = vals[1].(string)
	}
	job.UpdatedAt = now

	fields, err := jobToMap(job)
	if err != nil {
		return err
	}

	score := idScore(job.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.jobKey(job.ID), fields)
	pipe.ZAdd(ctx, s.indexKey("", ""), redis.Z{Score: score, Member: job.ID})
	if prevState != "" && (prevState != job.State || prevType != job.Type) {
		pipe.ZRem(ctx, s.indexKey("", prevState), job.ID)
		pipe.ZRem(ctx, s.indexKey(prevType, prevState), job.ID)
	}
	pipe.ZAdd(ctx, s.indexKey("", job.State), redis.Z{Score: score, Member: job.ID})
	pipe.ZAdd(ctx, s.indexKey(job.Type, job.State), redis.Z{Score: score, Member: job.ID})
	pipe.SAdd(ctx, s.key("job", "types"), job.Type)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	vals, err := s.client.HMGet(ctx, s.jobKey(id), "state", "type").Result()
	if err != nil {
		return fmt.Errorf("failed to read job: %w", err)
	}
	st, ok := vals[0].(string)
	if !ok {
		return ErrJobNotFound
	}
	state := model.JobState(st)
	jobType, _ := vals[1].(string)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.jobKey(id), s.logKey(id))
	pipe.ZRem(ctx, s.indexKey("", ""), id)
	pipe.ZRem(ctx, s.indexKey("", state), id)
	pipe.ZRem(ctx, s.indexKey(jobType, state), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}
	return nil
}

func (s *RedisStore) Range(ctx context.Context, q RangeQuery) ([]*model.Job, error) {
	key := s.indexKey(q.Type, q.State)

	var ids []string
	var err error
	if q.Order == model.OrderDesc {
		ids, err = s.client.ZRevRange(ctx, key, q.From, q.To).Result()
	} else {
		ids, err = s.client.ZRange(ctx, key, q.From, q.To).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to range jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Job{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // removed between the index read and the load
		}
		j, err := jobFromMap(ids[i], fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *RedisStore) Count(ctx context.Context, state model.JobState) (int64, error) {
	n, err := s.client.ZCard(ctx, s.indexKey("", state)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s jobs: %w", state, err)
	}
	return n, nil
}

func (s *RedisStore) WorkTime(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, s.key("stats", "work-time")).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read work time: %w", err)
	}
	return n, nil
}

func (s *RedisStore) AddWorkTime(ctx context.Context, ms int64) error {
	return s.client.IncrBy(ctx, s.key("stats", "work-time"), ms).Err()
}

func (s *RedisStore) Types(ctx context.Context) ([]string, error) {
	types, err := s.client.SMembers(ctx, s.key("job", "types")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list job types: %w", err)
	}
	sort.Strings(types)
	return types, nil
}

func (s *RedisStore) Log(ctx context.Context, id string) ([]string, error) {
	lines, err := s.client.LRange(ctx, s.logKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job log: %w", err)
	}
	return lines, nil
}

func (s *RedisStore) AppendLog(ctx context.Context, id, line string) error {
	n, err := s.client.Exists(ctx, s.jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to read job: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return s.client.RPush(ctx, s.logKey(id), line).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func idScore(id string) float64 {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0
	}
	return float64(n)
}

func jobToMap(j *model.Job) (map[string]interface{}, error) {
	data, err := json.Marshal(j.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	out := ""
	if j.Output != nil {
		b, err := json.Marshal(j.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job output: %w", err)
		}
		out = string(b)
	}
	promoteAt := ""
	if j.PromoteAt != nil {
		promoteAt = j.PromoteAt.UTC().Format(time.RFC3339Nano)
	}

	return map[string]interface{}{
		"type":       j.Type,
		"state":      string(j.State),
		"priority":   j.Priority,
		"attempts":   j.Attempts,
		"delay":      j.Delay,
		"data":       string(data),
		"output":     out,
		"error":      j.Error,
		"created_at": j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at": j.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"promote_at": promoteAt,
	}, nil
}

func jobFromMap(id string, m map[string]string) (*model.Job, error) {
	j := &model.Job{
		ID:    id,
		Type:  m["type"],
		State: model.JobState(m["state"]),
		Error: m["error"],
	}
	j.Priority, _ = strconv.Atoi(m["priority"])
	j.Attempts, _ = strconv.Atoi(m["attempts"])
	j.Delay, _ = strconv.ParseInt(m["delay"], 10, 64)

	if raw := m["data"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job %s data: %w", id, err)
		}
	}
	if raw := m["output"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &j.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job %s output: %w", id, err)
		}
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, m["created_at"])
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, m["updated_at"])
	if raw := m["promote_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			j.PromoteAt = &t
		}
	}
	return j, nil
}
