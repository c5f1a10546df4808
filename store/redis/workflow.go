package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, run *workflow.Run) error {
	rID := run.ID.String()
	key := s.runKey(rID)

	// HSETNX on the id field claims the key atomically.
	ok, err := s.client.HSetNX(ctx, key, "id", rID).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: create run: %w", err)
	}
	if !ok {
		return cadence.ErrRunAlreadyExists
	}

	now := time.Now().UTC()
	created := run.CreatedAt
	if created.IsZero() {
		created = now
	}
	fields, _ := runToMap(run)
	fields["created_at"] = nanos(created)
	fields["updated_at"] = nanos(now)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.SAdd(ctx, s.runIDsKey(), rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cadence/redis: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	vals, err := s.client.HGetAll(ctx, s.runKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: get run: %w", err)
	}
	if len(vals) == 0 {
		return nil, cadence.ErrRunNotFound
	}
	return mapToRun(vals)
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, run *workflow.Run) error {
	key := s.runKey(run.ID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: update run: %w", err)
	}
	if exists == 0 {
		return cadence.ErrRunNotFound
	}

	fields, cleared := runToMap(run)
	delete(fields, "created_at")
	fields["updated_at"] = nanos(time.Now())

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if len(cleared) > 0 {
		pipe.HDel(ctx, key, cleared...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cadence/redis: update run: %w", err)
	}
	return nil
}

// ListRuns returns workflow runs matching opts, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	ids, err := s.client.SMembers(ctx, s.runIDsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: list runs: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, rID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.runKey(rID))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cadence/redis: list runs: %w", err)
		}
	}

	var runs []*workflow.Run
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		r, err := mapToRun(vals)
		if err != nil {
			return nil, err
		}
		if opts.Workflow != "" && r.Workflow != opts.Workflow {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		runs = append(runs, r)
	}

	sort.Slice(runs, func(i, k int) bool {
		if !runs[i].StartedAt.Equal(runs[k].StartedAt) {
			return runs[i].StartedAt.Before(runs[k].StartedAt)
		}
		return runs[i].ID.String() < runs[k].ID.String()
	})
	return page(runs, opts.Offset, opts.Limit), nil
}

// ── helpers ──

// runToMap returns the hash fields for r and the optional fields that are
// unset and should be removed.
func runToMap(r *workflow.Run) (map[string]any, []string) {
	m := map[string]any{
		"id":         r.ID.String(),
		"workflow":   r.Workflow,
		"state":      string(r.State),
		"step":       strconv.Itoa(r.Step),
		"step_name":  r.StepName,
		"tick_at":    nanos(r.TickAt),
		"error":      r.Error,
		"started_at": nanos(r.StartedAt),
		"created_at": nanos(r.CreatedAt),
	}
	var cleared []string
	if r.ResumeAt != nil {
		m["resume_at"] = nanos(*r.ResumeAt)
	} else {
		cleared = append(cleared, "resume_at")
	}
	if r.CompletedAt != nil {
		m["completed_at"] = nanos(*r.CompletedAt)
	} else {
		cleared = append(cleared, "completed_at")
	}
	return m, cleared
}

func mapToRun(m map[string]string) (*workflow.Run, error) {
	rID, err := id.ParseRunID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: parse run id: %w", err)
	}
	step, _ := strconv.Atoi(m["step"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &workflow.Run{
		Entity: cadence.Entity{
			CreatedAt: parseNanos(m["created_at"]),
			UpdatedAt: parseNanos(m["updated_at"]),
		},
		ID:          rID,
		Workflow:    m["workflow"],
		State:       workflow.RunState(m["state"]),
		Step:        step,
		StepName:    m["step_name"],
		TickAt:      parseNanos(m["tick_at"]),
		Error:       m["error"],
		StartedAt:   parseNanos(m["started_at"]),
		ResumeAt:    parseNanosPtr(m["resume_at"]),
		CompletedAt: parseNanosPtr(m["completed_at"]),
	}, nil
}
