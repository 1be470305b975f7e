package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe"
)

func TestJobOp(t *testing.T) {
	two := []string{"a", "b"}
	tests := []struct {
		name string
		job  Job
		want tfhe.GateOp
		ok   bool
	}{
		{"and", Job{ID: "1", Gate: "and", Lefts: two, Rights: two}, tfhe.AND, true},
		{"not", Job{ID: "1", Gate: "NOT", Lefts: two}, tfhe.NOT, true},
		{"mux", Job{ID: "1", Gate: "mux", Lefts: two, Rights: two, Elses: two}, tfhe.MUX, true},
		{"no id", Job{Gate: "and", Lefts: two, Rights: two}, 0, false},
		{"unknown gate", Job{ID: "1", Gate: "imply", Lefts: two, Rights: two}, 0, false},
		{"empty", Job{ID: "1", Gate: "or"}, 0, false},
		{"short rights", Job{ID: "1", Gate: "xor", Lefts: two, Rights: two[:1]}, 0, false},
		{"not with rights", Job{ID: "1", Gate: "not", Lefts: two, Rights: two}, 0, false},
		{"mux without elses", Job{ID: "1", Gate: "mux", Lefts: two, Rights: two}, 0, false},
		{"and with elses", Job{ID: "1", Gate: "and", Lefts: two, Rights: two, Elses: two}, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			op, err := tc.job.Op()
			if !tc.ok {
				require.ErrorIs(t, err, ErrInvalidJob)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, op)
		})
	}
}

func TestJobJSON(t *testing.T) {
	job := Job{ID: "7", Gate: "XOR", Lefts: []string{"a"}, Rights: []string{"b"}, Status: StatusCompleted}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NotContains(t, string(data), "elses")

	var got Job
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, job, got)
	require.Equal(t, "completed", got.Status.String())
}

// TestRedisQueue runs against the server named by TFHE_TEST_REDIS.
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("TFHE_TEST_REDIS")
	if addr == "" {
		t.Skip("TFHE_TEST_REDIS not set")
	}
	q, err := NewRedisQueue(RedisConfig{Addr: addr}, "test-"+time.Now().Format("150405.000000"))
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job := &Job{ID: "job-1", Gate: "and", Lefts: []string{"a"}, Rights: []string{"b"}}
	require.NoError(t, q.Push(ctx, job))
	require.ErrorIs(t, q.Push(ctx, &Job{ID: "bad", Gate: "and"}), ErrInvalidJob)

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "job-1", got.ID)
	require.Equal(t, StatusPending, got.Status)

	got.Status = StatusCompleted
	got.Results = []string{"c"}
	require.NoError(t, q.Update(ctx, got))

	again, err := q.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, again.Status)
	require.Equal(t, []string{"c"}, again.Results)

	_, err = q.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}
