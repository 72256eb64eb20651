package query

// NodeField is a reserved, fixed attribute common to every replicated object.
// Column is empty for reserved names that have no physical column.
type NodeField struct {
	Name   string
	Column string
	// EntityReference marks columns whose bind values are entity ids and must
	// be passed through TransformID.
	EntityReference bool
}

func (f NodeField) HasColumn() bool {
	return f.Column != ""
}

// NodeFields is the reserved-name lookup table consulted by column resolution.
type NodeFields interface {
	Lookup(name string) (NodeField, bool)
	// All returns the reserved fields in their select-star order.
	All() []NodeField
}

// FieldTable is an immutable NodeFields.
type FieldTable struct {
	fields []NodeField
	byName map[string]NodeField
}

func NewFieldTable(fields ...NodeField) *FieldTable {
	t := &FieldTable{
		fields: make([]NodeField, len(fields)),
		byName: make(map[string]NodeField, len(fields)),
	}
	copy(t.fields, fields)
	for _, f := range fields {
		t.byName[f.Name] = f
	}
	return t
}

func (t *FieldTable) Lookup(name string) (NodeField, bool) {
	f, ok := t.byName[name]
	return f, ok
}

func (t *FieldTable) All() []NodeField {
	out := make([]NodeField, len(t.fields))
	copy(out, t.fields)
	return out
}

// DefaultNodeFields matches the OBJECT_REPLICATION table layout.
var DefaultNodeFields = NewFieldTable(
	NodeField{Name: "id", Column: "ID", EntityReference: true},
	NodeField{Name: "name", Column: "NAME"},
	NodeField{Name: "alias"},
	NodeField{Name: "createdOn", Column: "CREATED_ON"},
	NodeField{Name: "createdBy", Column: "CREATED_BY"},
	NodeField{Name: "etag", Column: "ETAG"},
	NodeField{Name: "type", Column: "TYPE"},
	NodeField{Name: "currentVersion", Column: "CURRENT_VERSION"},
	NodeField{Name: "parentId", Column: "PARENT_ID", EntityReference: true},
	NodeField{Name: "benefactorId", Column: "BENEFACTOR_ID", EntityReference: true},
	NodeField{Name: "projectId", Column: "PROJECT_ID", EntityReference: true},
	NodeField{Name: "modifiedOn", Column: "MODIFIED_ON"},
	NodeField{Name: "modifiedBy", Column: "MODIFIED_BY"},
	NodeField{Name: "dataFileHandleId", Column: "FILE_ID"},
)
