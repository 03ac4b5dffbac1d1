package crdt

// ApplyOp dispatches a single op to the node it targets, per
// SPEC_FULL.md §4.4. An op against a missing/stale target is not an
// error — the server may have already garbage-collected it — it simply
// reports {Modified: false}.
func ApplyOp(reg *Registry, op Op, source OpSource) ApplyResult {
	switch v := op.(type) {
	case *UpdateObject:
		return dispatchToTarget(reg, v.NodeID, op, source)
	case *DeleteObjectKey:
		return dispatchToTarget(reg, v.NodeID, op, source)
	case *DeleteCrdt:
		return dispatchToTarget(reg, v.NodeID, op, source)

	case *SetParentKey:
		node, ok := reg.Get(v.NodeID)
		if !ok {
			return notModified
		}
		parent := node.Parent()
		if parent.Kind != ParentHasParent {
			return notModified
		}
		parentNode, ok := reg.Get(parent.Parent)
		if !ok {
			return notModified
		}
		list, ok := parentNode.(*ListNode)
		if !ok {
			return notModified
		}
		return list.SetChildKey(v.ParentKey, node, source)

	case *CreateObject:
		return dispatchAttach(reg, v.ParentID, op, source)
	case *CreateList:
		return dispatchAttach(reg, v.ParentID, op, source)
	case *CreateMap:
		return dispatchAttach(reg, v.ParentID, op, source)
	case *CreateRegister:
		return dispatchAttach(reg, v.ParentID, op, source)

	default:
		return notModified
	}
}

func dispatchToTarget(reg *Registry, nodeID string, op Op, source OpSource) ApplyResult {
	node, ok := reg.Get(nodeID)
	if !ok {
		return notModified
	}
	return node.Apply(op, source)
}

func dispatchAttach(reg *Registry, parentID string, op Op, source OpSource) ApplyResult {
	if parentID == "" {
		return notModified // root creation is not an op; see Load
	}
	parent, ok := reg.Get(parentID)
	if !ok {
		return notModified
	}
	return parent.AttachChild(op, source)
}
