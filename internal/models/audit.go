package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRoleSwitch     = "ROLE_SWITCH"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionClassCreate    = "CLASS_CREATE"
	AuditActionClassUpdate    = "CLASS_UPDATE"
	AuditActionClassDelete    = "CLASS_DELETE"
	AuditActionTeacherAssign  = "CLASS_TEACHER_ASSIGN"
	AuditActionTeacherRemove  = "CLASS_TEACHER_REMOVE"
	AuditActionMemberAdd      = "CLASS_MEMBER_ADD"
	AuditActionMemberRemove   = "CLASS_MEMBER_REMOVE"
	AuditActionProgramCreate  = "PROGRAM_CREATE"
	AuditActionProgramUpdate  = "PROGRAM_UPDATE"
	AuditActionProgramDelete  = "PROGRAM_DELETE"
	AuditActionSessionCreate  = "SESSION_CREATE"
	AuditActionSessionUpdate  = "SESSION_UPDATE"
	AuditActionSessionDelete  = "SESSION_DELETE"
	AuditActionMaterialUpload = "MATERIAL_UPLOAD"
	AuditActionMaterialDelete = "MATERIAL_DELETE"
)

// AuditLog represents an audit trail record. Writes are fire-and-forget:
// a failed audit write never rolls back the primary mutation.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   *string   `db:"entity_id" json:"entity_id,omitempty"`
	Metadata   []byte    `db:"metadata" json:"metadata,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditListResponse pairs a page of audit entries with pagination metadata.
type AuditListResponse struct {
	Entries    []AuditLog `json:"entries"`
	Pagination Pagination `json:"pagination"`
}

// AuditFilter captures filtering criteria for the audit log listing.
type AuditFilter struct {
	ActorID    string
	Action     string
	EntityType string
	Page       int
	PageSize   int
}
