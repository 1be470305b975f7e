// Package queue carries packed gate requests between clients and workers.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/tfhe"
)

// Common errors.
var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Job applies one gate element-wise to lists of stored ciphertexts. For
// MUX, Lefts holds the conditions, Rights the then branches and Elses the
// else branches. NOT reads only Lefts.
type Job struct {
	ID      string    `json:"id"`
	Gate    string    `json:"gate"`
	Lefts   []string  `json:"lefts"`
	Rights  []string  `json:"rights,omitempty"`
	Elses   []string  `json:"elses,omitempty"`
	Results []string  `json:"results,omitempty"`
	Status  JobStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
	// Backend reports which backend evaluated the job.
	Backend   string    `json:"backend,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Op parses the job gate and checks the operand counts.
func (j *Job) Op() (tfhe.GateOp, error) {
	if j.ID == "" {
		return 0, fmt.Errorf("%w: empty id", ErrInvalidJob)
	}
	op, err := tfhe.ParseGateOp(j.Gate)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}
	if len(j.Lefts) == 0 {
		return 0, fmt.Errorf("%w: no operands", ErrInvalidJob)
	}
	switch op {
	case tfhe.NOT:
		if len(j.Rights) != 0 || len(j.Elses) != 0 {
			return 0, fmt.Errorf("%w: NOT takes one operand list", ErrInvalidJob)
		}
	case tfhe.MUX:
		if len(j.Rights) != len(j.Lefts) || len(j.Elses) != len(j.Lefts) {
			return 0, fmt.Errorf("%w: MUX operand lists differ in length", ErrInvalidJob)
		}
	default:
		if len(j.Rights) != len(j.Lefts) || len(j.Elses) != 0 {
			return 0, fmt.Errorf("%w: %s operand lists differ in length", ErrInvalidJob, op)
		}
	}
	return op, nil
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Push adds a job to the queue.
	Push(ctx context.Context, job *Job) error
	// Pop blocks until a job is available and removes it from the queue.
	Pop(ctx context.Context) (*Job, error)
	// Update stores the job state.
	Update(ctx context.Context, job *Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// Close closes the queue connection.
	Close() error
}

// RedisQueue implements Queue with a Redis list of job IDs and one key per
// job.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisQueue connects to Redis and pings it.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{
		client:    client,
		queueKey:  "tfhe:queue:" + queueName,
		jobPrefix: "tfhe:job:",
		ttl:       24 * time.Hour,
	}, nil
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	if _, err := job.Op(); err != nil {
		return err
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, q.ttl)
	pipe.LPush(ctx, q.queueKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("pop job: %w", err)
	}
	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return q.Get(ctx, result[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.Set(ctx, q.jobPrefix+job.ID, data, q.ttl).Err(); err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
