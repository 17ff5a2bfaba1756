package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Record mutation events
	EventTypeDataRecordCreate EventType = "data.record_create"
	EventTypeDataRecordUpdate EventType = "data.record_update"
	EventTypeDataRecordDelete EventType = "data.record_delete"
	EventTypeDataBatch        EventType = "data.batch"

	// Session and token events
	EventTypeAuthSessionCreate   EventType = "auth.session_create"
	EventTypeAuthSessionRevoke   EventType = "auth.session_revoke"
	EventTypeAuthActiveOrgChange EventType = "auth.active_org_change"
	EventTypeAuthTokenConsume    EventType = "auth.token_consume"

	// Organization events
	EventTypeOrgCreate           EventType = "org.create"
	EventTypeOrgMemberRoleChange EventType = "org.member_role_change"
	EventTypeOrgMemberRemove     EventType = "org.member_remove"
	EventTypeOrgInvitationCreate EventType = "org.invitation_create"
	EventTypeOrgInvitationAccept EventType = "org.invitation_accept"
	EventTypeOrgInvitationReject EventType = "org.invitation_reject"
	EventTypeOrgInvitationCancel EventType = "org.invitation_cancel"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeRecord       ResourceType = "record"
	ResourceTypeTable        ResourceType = "table"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeMember       ResourceType = "member"
	ResourceTypeInvitation   ResourceType = "invitation"
	ResourceTypeSession      ResourceType = "session"
	ResourceTypeToken        ResourceType = "token"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string                 `json:"request_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}
