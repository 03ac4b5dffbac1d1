package crdt

// MapNode holds CRDT children keyed by an arbitrary string key (a
// LiveMap). Unlike ObjectNode it never holds plain scalar data directly
// — a "map value" is always a nested node (commonly a RegisterNode for
// scalars), matching real Liveblocks semantics where LiveMap entries are
// themselves Live structures created/deleted with Create*/DeleteCrdt
// rather than mutated in place with UPDATE_OBJECT.
type MapNode struct {
	base
	children map[string]string // key -> child node id
}

// NewMapNode constructs a detached, empty MapNode.
func NewMapNode(reg *Registry, id string) *MapNode {
	return &MapNode{base: base{id: id, reg: reg}, children: map[string]string{}}
}

func (m *MapNode) ToSerializedForm() SerializedCrdt {
	s := SerializedCrdt{ID: m.id, Type: TypeMap}
	if m.parent.Kind == ParentHasParent {
		s.ParentID = m.parent.Parent
		s.ParentKey = m.parent.Key
	}
	return s
}

func (m *MapNode) Apply(op Op, source OpSource) ApplyResult {
	del, ok := op.(*DeleteCrdt)
	if !ok {
		return notModified
	}
	recreate := &CreateMap{NodeID: m.id}
	if m.parent.Kind == ParentHasParent {
		recreate.ParentID = m.parent.Parent
		recreate.ParentKey = m.parent.Key
	}
	_ = del
	return m.applyDelete(recreate)
}

func (m *MapNode) AttachChild(op Op, source OpSource) ApplyResult {
	child, key, ok := instantiateChild(m.reg, op)
	if !ok {
		return notModified
	}
	if existingID, has := m.children[key]; has {
		// A CREATE_* at an occupied map key replaces the previous entry,
		// mirroring a Set() on a real map: the old child is removed first
		// so only one live node ever answers for the key.
		m.reg.Delete(existingID)
	}
	m.reg.Add(child)
	child.setParent(ParentRef{Kind: ParentHasParent, Parent: m.id, Key: key})
	m.children[key] = child.ID()
	update := newStorageUpdate(child.ID(), UpdateKindUpdate)
	update.ParentID = m.id
	return ApplyResult{
		Modified: true,
		Update:   update,
		Reverse:  []Op{&DeleteCrdt{NodeID: child.ID()}},
	}
}

func (m *MapNode) SetChildKey(key string, child Node, source OpSource) ApplyResult {
	return notModified
}
