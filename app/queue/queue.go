package queue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JobKey identifies a poll job; at most one job is pending per key.
type JobKey struct {
	OrderID    uint64
	ObjectType string
}

func (k JobKey) String() string {
	return strconv.FormatUint(k.OrderID, 10) + ":" + k.ObjectType
}

func ParseJobKey(member string) (JobKey, error) {
	idx := strings.IndexByte(member, ':')
	if idx <= 0 || idx == len(member)-1 {
		return JobKey{}, fmt.Errorf("invalid job key %q", member)
	}
	orderID, err := strconv.ParseUint(member[:idx], 10, 64)
	if err != nil {
		return JobKey{}, fmt.Errorf("invalid job key %q: %w", member, err)
	}
	return JobKey{OrderID: orderID, ObjectType: member[idx+1:]}, nil
}

type Job struct {
	Key   JobKey
	RunAt time.Time
}

type Queue interface {
	// Schedule enqueues a job unless one is already pending for key.
	Schedule(ctx context.Context, key JobKey, runAt time.Time) (bool, error)
	UnscheduleAll(ctx context.Context, key JobKey) (int, error)
	ListPending(ctx context.Context, key JobKey) ([]Job, error)
	// ClaimDue removes and returns up to limit jobs due at now.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[JobKey]time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: map[JobKey]time.Time{}}
}

func (q *MemoryQueue) Schedule(_ context.Context, key JobKey, runAt time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[key]; ok {
		return false, nil
	}
	q.jobs[key] = runAt
	return true, nil
}

func (q *MemoryQueue) UnscheduleAll(_ context.Context, key JobKey) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[key]; !ok {
		return 0, nil
	}
	delete(q.jobs, key)
	return 1, nil
}

func (q *MemoryQueue) ListPending(_ context.Context, key JobKey) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	runAt, ok := q.jobs[key]
	if !ok {
		return []Job{}, nil
	}
	return []Job{{Key: key, RunAt: runAt}}, nil
}

func (q *MemoryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	due := make([]Job, 0)
	for key, runAt := range q.jobs {
		if !runAt.After(now) {
			due = append(due, Job{Key: key, RunAt: runAt})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].Key.String() < due[j].Key.String()
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, job := range due {
		delete(q.jobs, job.Key)
	}
	return due, nil
}
