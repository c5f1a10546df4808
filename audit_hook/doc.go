// Package audithook is a Cadence extension that turns lifecycle events into
// audit records.
//
// Every tick, task and workflow hook produces a structured [AuditEvent]
// handed to a [Recorder]. Severity follows the event: info for normal
// progress, warning for retries and failed steps, critical for terminal
// failures and pipe faults.
//
//	eng, err := engine.New(
//	    engine.WithExtension(audithook.New(audithook.RecorderFunc(
//	        func(ctx context.Context, evt *audithook.AuditEvent) error {
//	            return auditLog.Write(ctx, evt)
//	        },
//	    ))),
//	)
//
// Ticks fire often; restrict the stream to what matters with [WithActions].
package audithook
