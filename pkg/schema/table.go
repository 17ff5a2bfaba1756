package schema

// Field looks up a declared field
func (t *Table) Field(name string) (*Field, bool) {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i], true
		}
	}
	return nil, false
}

// HasColumn reports whether name is a declared field or a system column
func (t *Table) HasColumn(name string) bool {
	if _, ok := t.Field(name); ok {
		return true
	}
	return t.IsSystemColumn(name)
}

// IsSystemColumn reports whether name is managed by the server
func (t *Table) IsSystemColumn(name string) bool {
	switch name {
	case t.PrimaryKey, ColumnCreatedAt, ColumnUpdatedAt, ColumnDeletedAt:
		return true
	case ColumnID:
		return t.PrimaryKey == ColumnID
	case ColumnOrganizationID:
		return t.OrganizationScoped
	}
	return false
}

// IsReadonly reports whether clients may never write name. organization_id
// is excluded: it is validated against the active organization instead.
func (t *Table) IsReadonly(name string) bool {
	if name == ColumnOrganizationID && t.OrganizationScoped {
		return false
	}
	if t.IsSystemColumn(name) {
		return true
	}
	f, ok := t.Field(name)
	return ok && f.Readonly
}

// PrimaryKeyType returns the primary key column type
func (t *Table) PrimaryKeyType() FieldType {
	if f, ok := t.Field(t.PrimaryKey); ok {
		return f.Type
	}
	return TypeUUID
}

// Columns returns every column in storage order: primary key, declared
// fields, organization_id when scoped, then timestamps. deleted_at is
// omitted since it is never returned to clients.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+4)
	cols = append(cols, t.PrimaryKey)
	for _, f := range t.Fields {
		if f.Name != t.PrimaryKey {
			cols = append(cols, f.Name)
		}
	}
	if t.OrganizationScoped {
		cols = append(cols, ColumnOrganizationID)
	}
	return append(cols, ColumnCreatedAt, ColumnUpdatedAt)
}

// OwnerFields returns the distinct owner columns referenced by the table's
// operation rules. These are populated from the session on create.
func (t *Table) OwnerFields() []string {
	if t.Permissions == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, op := range Operations {
		r := t.Permissions.Rule(op)
		if r != nil && r.Kind() == RuleOwner && !seen[r.OwnerField()] {
			seen[r.OwnerField()] = true
			out = append(out, r.OwnerField())
		}
	}
	return out
}

// FieldPermission returns the sub-rules for a column, if any
func (t *Table) FieldPermission(name string) (*FieldPermission, bool) {
	if t.Permissions == nil {
		return nil, false
	}
	for i := range t.Permissions.Fields {
		if t.Permissions.Fields[i].Field == name {
			return &t.Permissions.Fields[i], true
		}
	}
	return nil, false
}
