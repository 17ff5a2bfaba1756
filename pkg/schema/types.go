package schema

// Operation is a table operation gated by a permission rule
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every table operation in evaluation order
var Operations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// FieldType is the declared type of a column
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeEmail    FieldType = "email"
	TypeInteger  FieldType = "integer"
	TypeDecimal  FieldType = "decimal"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeUUID     FieldType = "uuid"
	TypeJSON     FieldType = "json"
)

// Valid reports whether t is a known field type
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeEmail, TypeInteger, TypeDecimal, TypeBoolean, TypeDatetime, TypeUUID, TypeJSON:
		return true
	}
	return false
}

// System columns present on every application table
const (
	ColumnID             = "id"
	ColumnCreatedAt      = "created_at"
	ColumnUpdatedAt      = "updated_at"
	ColumnDeletedAt      = "deleted_at"
	ColumnOrganizationID = "organization_id"
)

// Schema is the declarative application configuration
type Schema struct {
	Name   string  `yaml:"name" json:"name"`
	Auth   Auth    `yaml:"auth" json:"auth"`
	Tables []Table `yaml:"tables" json:"tables"`
}

// Auth holds role declarations and the fallback role
type Auth struct {
	DefaultRole string           `yaml:"defaultRole" json:"defaultRole"`
	Roles       []RoleDefinition `yaml:"roles" json:"roles"`
}

// RoleDefinition declares a custom role
type RoleDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Level       *int   `yaml:"level" json:"level"`
}

// Table declares an application table and its permissions
type Table struct {
	Name               string       `yaml:"name" json:"name"`
	PrimaryKey         string       `yaml:"primaryKey" json:"primaryKey"`
	OrganizationScoped bool         `yaml:"organizationScoped" json:"organizationScoped"`
	Fields             []Field      `yaml:"fields" json:"fields"`
	Permissions        *Permissions `yaml:"permissions" json:"permissions"`
}

// Field declares a column
type Field struct {
	Name     string      `yaml:"name" json:"name"`
	Type     FieldType   `yaml:"type" json:"type"`
	Required bool        `yaml:"required" json:"required"`
	Unique   bool        `yaml:"unique" json:"unique"`
	Readonly bool        `yaml:"readonly" json:"readonly"`
	Default  interface{} `yaml:"default" json:"default"`
}

// Permissions holds per-operation rules and per-field sub-rules. A nil rule
// denies the operation.
type Permissions struct {
	Read   *Rule             `yaml:"read" json:"read"`
	Create *Rule             `yaml:"create" json:"create"`
	Update *Rule             `yaml:"update" json:"update"`
	Delete *Rule             `yaml:"delete" json:"delete"`
	Fields []FieldPermission `yaml:"fields" json:"fields"`
}

// Rule returns the rule for op, or nil
func (p *Permissions) Rule(op Operation) *Rule {
	if p == nil {
		return nil
	}
	switch op {
	case OpRead:
		return p.Read
	case OpCreate:
		return p.Create
	case OpUpdate:
		return p.Update
	case OpDelete:
		return p.Delete
	}
	return nil
}

// FieldPermission layers read/write rules onto one column. A nil rule leaves
// the column governed by the table rule alone.
type FieldPermission struct {
	Field string `yaml:"field" json:"field"`
	Read  *Rule  `yaml:"read" json:"read"`
	Write *Rule  `yaml:"write" json:"write"`
}
