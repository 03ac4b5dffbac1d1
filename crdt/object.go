package crdt

// ObjectNode holds a flat map of plain JSON fields plus any CRDT
// children attached under a key (a LiveObject in Liveblocks terms can
// hold either scalar data or a nested Live structure per key).
type ObjectNode struct {
	base
	data     Data
	children map[string]string // key -> child node id
}

// NewObjectNode constructs a detached ObjectNode; callers attach it via
// Registry.Add and set its parent.
func NewObjectNode(reg *Registry, id string, data Data) *ObjectNode {
	return &ObjectNode{
		base:     base{id: id, reg: reg},
		data:     data.Clone(),
		children: map[string]string{},
	}
}

func (o *ObjectNode) ToSerializedForm() SerializedCrdt {
	s := SerializedCrdt{ID: o.id, Type: TypeObject, Data: o.data.Clone()}
	if o.parent.Kind == ParentHasParent {
		s.ParentID = o.parent.Parent
		s.ParentKey = o.parent.Key
	}
	return s
}

func (o *ObjectNode) Apply(op Op, source OpSource) ApplyResult {
	switch v := op.(type) {
	case *UpdateObject:
		if len(v.Data) == 0 {
			return notModified
		}
		reverse := &UpdateObject{NodeID: o.id, Data: Data{}}
		var reverseDeletes []Op
		update := newStorageUpdate(o.id, UpdateKindUpdate)
		for k, newVal := range v.Data {
			if old, existed := o.data[k]; existed {
				reverse.Data[k] = old
			} else {
				reverseDeletes = append(reverseDeletes, &DeleteObjectKey{NodeID: o.id, Key: k})
			}
			o.data[k] = newVal
			update = update.withKey(k)
		}
		rev := reverseDeletes
		if len(reverse.Data) > 0 {
			rev = append([]Op{reverse}, rev...)
		}
		return ApplyResult{Modified: true, Update: update, Reverse: rev}

	case *DeleteObjectKey:
		old, existed := o.data[v.Key]
		if !existed {
			return notModified
		}
		delete(o.data, v.Key)
		reverse := &UpdateObject{NodeID: o.id, Data: Data{v.Key: old}}
		return ApplyResult{
			Modified: true,
			Update:   newStorageUpdate(o.id, UpdateKindUpdate).withKey(v.Key),
			Reverse:  []Op{reverse},
		}

	case *DeleteCrdt:
		recreate := &CreateObject{NodeID: o.id, Data: o.data.Clone()}
		if o.parent.Kind == ParentHasParent {
			recreate.ParentID = o.parent.Parent
			recreate.ParentKey = o.parent.Key
		}
		return o.applyDelete(recreate)

	default:
		return notModified
	}
}

func (o *ObjectNode) AttachChild(op Op, source OpSource) ApplyResult {
	child, key, ok := instantiateChild(o.reg, op)
	if !ok {
		return notModified
	}
	o.reg.Add(child)
	child.setParent(ParentRef{Kind: ParentHasParent, Parent: o.id, Key: key})
	o.children[key] = child.ID()
	update := newStorageUpdate(child.ID(), UpdateKindUpdate)
	update.ParentID = o.id
	return ApplyResult{
		Modified: true,
		Update:   update,
		Reverse:  []Op{&DeleteCrdt{NodeID: child.ID()}},
	}
}

func (o *ObjectNode) SetChildKey(key string, child Node, source OpSource) ApplyResult {
	return notModified // only list parents support reordering
}
