package replication

import "github.com/nikolay-makurin/entityview/pkg/types"

// replicationTypes maps object types to their replica table family. Object
// types missing here are not replicated.
var replicationTypes = map[types.ObjectType]types.ReplicationType{
	types.ObjectEntity:     types.ReplicationEntity,
	types.ObjectSubmission: types.ReplicationSubmission,
}

// ReplicationTypeOf returns the replication type of an object type.
func ReplicationTypeOf(t types.ObjectType) (types.ReplicationType, bool) {
	rt, ok := replicationTypes[t]
	return rt, ok
}

// ObjectTypeOf is the inverse of ReplicationTypeOf.
func ObjectTypeOf(rt types.ReplicationType) (types.ObjectType, bool) {
	for ot, r := range replicationTypes {
		if r == rt {
			return ot, true
		}
	}
	return "", false
}

// DataGroup stages one replication type's share of a change batch. Every id
// to create or update is also deleted first.
type DataGroup struct {
	Type                types.ReplicationType
	IDsToDelete         []int64
	IDsToCreateOrUpdate []int64

	deleting map[int64]struct{}
	updating map[int64]struct{}
}

func NewDataGroup(t types.ReplicationType) *DataGroup {
	return &DataGroup{
		Type:     t,
		deleting: make(map[int64]struct{}),
		updating: make(map[int64]struct{}),
	}
}

func (g *DataGroup) AddForDelete(id int64) {
	if _, ok := g.deleting[id]; ok {
		return
	}
	g.deleting[id] = struct{}{}
	g.IDsToDelete = append(g.IDsToDelete, id)
}

func (g *DataGroup) AddForCreateOrUpdate(id int64) {
	g.AddForDelete(id)
	if _, ok := g.updating[id]; ok {
		return
	}
	g.updating[id] = struct{}{}
	g.IDsToCreateOrUpdate = append(g.IDsToCreateOrUpdate, id)
}

// GroupByReplicationType splits changes into one DataGroup per replication
// type, in order of first appearance. Unmapped object types are skipped.
func GroupByReplicationType(changes []types.ChangeMessage) []*DataGroup {
	var groups []*DataGroup
	byType := make(map[types.ReplicationType]*DataGroup)
	for _, c := range changes {
		rt, ok := replicationTypes[c.ObjectType]
		if !ok {
			continue
		}
		g, ok := byType[rt]
		if !ok {
			g = NewDataGroup(rt)
			byType[rt] = g
			groups = append(groups, g)
		}
		if c.ChangeType == types.ChangeDelete {
			g.AddForDelete(c.ObjectID)
		} else {
			g.AddForCreateOrUpdate(c.ObjectID)
		}
	}
	return groups
}
