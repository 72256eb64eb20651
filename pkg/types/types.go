package types

import (
	"fmt"
	"time"
)

type LSN uint64

func (l LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(l>>32), uint32(l))
}

type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ObjectType names the kind of truth object a change refers to.
type ObjectType string

const (
	ObjectEntity     ObjectType = "ENTITY"
	ObjectSubmission ObjectType = "SUBMISSION"
	ObjectEntityView ObjectType = "ENTITY_VIEW"
	ObjectACL        ObjectType = "ACCESS_CONTROL_LIST"
	ObjectFileHandle ObjectType = "FILE_HANDLE"
	ObjectWikiPage   ObjectType = "WIKI_PAGE"
	ObjectPrincipal  ObjectType = "PRINCIPAL"
	ObjectEvaluation ObjectType = "EVALUATION"
)

// ReplicationType names a replica table family. Several object types may
// never be replicated; those have no ReplicationType.
type ReplicationType string

const (
	ReplicationEntity     ReplicationType = "ENTITY"
	ReplicationSubmission ReplicationType = "SUBMISSION"
)

// ChangeMessage is the wire shape published to and consumed from the
// replication queue.
type ChangeMessage struct {
	ChangeType ChangeType `json:"changeType"`
	ObjectType ObjectType `json:"objectType"`
	ObjectID   int64      `json:"objectId"`
	// Timestamp is informational only and is not part of the wire shape.
	Timestamp time.Time `json:"-"`
}

func (m ChangeMessage) String() string {
	return fmt.Sprintf("%s %s %d", m.ChangeType, m.ObjectType, m.ObjectID)
}

// IDAndChecksum is one element of an ascending checksum stream.
type IDAndChecksum struct {
	ID       int64
	Checksum int64
}

type AnnotationType string

const (
	AnnotationString  AnnotationType = "STRING"
	AnnotationLong    AnnotationType = "LONG"
	AnnotationDouble  AnnotationType = "DOUBLE"
	AnnotationDate    AnnotationType = "DATE"
	AnnotationBoolean AnnotationType = "BOOLEAN"
)

type Annotation struct {
	Key   string
	Type  AnnotationType
	Value string
}

// ObjectData is the flattened row used to (re)populate the replica.
type ObjectData struct {
	ID             int64
	Name           string
	Type           string
	ETag           string
	CurrentVersion int64
	ParentID       *int64
	BenefactorID   int64
	ProjectID      *int64
	CreatedBy      int64
	CreatedOn      time.Time
	ModifiedBy     int64
	ModifiedOn     time.Time
	FileHandleID   *int64
	Annotations    []Annotation
}

// Batch is one unit of replica work: a single replication type with the ids
// to remove and the fresh rows to insert.
type Batch struct {
	Type      ReplicationType
	DeleteIDs []int64
	Rows      []ObjectData
}

// Scope is the slice of truth a view covers: objects of one replication type
// whose parent is one of ContainerIDs.
type Scope struct {
	ViewID       int64
	Type         ReplicationType
	ContainerIDs []int64
}
