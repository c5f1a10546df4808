// Package workflow chains typed steps that run, in order, once per tick.
//
// The first step receives the tick and the worker's shared data; each
// following step receives the previous step's output:
//
//	c := workflow.New("digest", collect)             // tick.Tick -> []Item
//	d := workflow.Then(c, "render", render)          // []Item -> Email
//	d = workflow.Delay(d, 5*time.Minute)
//	e := workflow.Then(d, "send", send)              // Email -> Receipt
//
// A delay is a scheduled continuation: the instance parks on a timer and
// the calling goroutine is released, so suspended instances do not occupy
// worker slots. When a step fails the remaining steps are skipped and the
// instance fails with a *StepError. Side effects of completed steps are not
// rolled back.
//
// # Limitation
//
// Instances are single-use and are not re-run from the top. A worker that
// runs a workflow therefore cannot also apply a retry policy with more than
// one attempt; worker.BuildWorkflow rejects that combination. Steps that
// must survive transient faults should retry internally and be idempotent.
package workflow
