package redis

// Redis key naming conventions for cadence data.
// All keys share the store prefix, "cadence:" by default.

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "cadence:"

// ── Task keys ──

// taskKey returns the Hash key for a task: {prefix}task:{id}
func (s *Store) taskKey(id string) string { return s.prefix + "task:" + id }

// queueKey returns the Sorted Set of pending task members for a queue:
// {prefix}queue:{name}
func (s *Store) queueKey(name string) string { return s.prefix + "queue:" + name }

// queuesKey is the Set of every queue name seen by EnqueueTask.
func (s *Store) queuesKey() string { return s.prefix + "queues" }

// taskIDsKey is the Set tracking all task IDs for enumeration.
func (s *Store) taskIDsKey() string { return s.prefix + "task_ids" }

// runningKey is the Sorted Set of running task IDs scored by heartbeat
// time in milliseconds.
func (s *Store) runningKey() string { return s.prefix + "running" }

// ── Workflow keys ──

// runKey returns the Hash key for a workflow run: {prefix}run:{id}
func (s *Store) runKey(id string) string { return s.prefix + "run:" + id }

// runIDsKey is the Set tracking all run IDs for enumeration.
func (s *Store) runIDsKey() string { return s.prefix + "run_ids" }
