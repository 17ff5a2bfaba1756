// Package audit records authorization denials, record mutations and
// lifecycle transitions.
//
// Events go to the audit_events table through DBLogger and to the process
// log through LogLogger; MultiLogger combines the two:
//
//	logger := audit.NewMultiLogger(dbLogger, audit.NewLogLogger(appLogger))
//	event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
//	event.ResourceType = audit.ResourceTypeTable
//	event.ResourceID = "employees"
//	event.Message = "Cannot write field 'salary'"
//	logger.Log(ctx, event)
//
// Audit failures are logged by callers and never fail the request.
package audit
