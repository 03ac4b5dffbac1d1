package crdt

// instantiateChild builds the (unattached) node a CREATE_* op describes,
// shared by every container's AttachChild so ObjectNode/MapNode/ListNode
// don't each repeat the op-kind switch.
func instantiateChild(reg *Registry, op Op) (Node, string, bool) {
	switch v := op.(type) {
	case *CreateObject:
		return NewObjectNode(reg, v.NodeID, v.Data), v.ParentKey, true
	case *CreateMap:
		return NewMapNode(reg, v.NodeID), v.ParentKey, true
	case *CreateList:
		return NewListNode(reg, v.NodeID), v.ParentKey, true
	case *CreateRegister:
		return NewRegisterNode(reg, v.NodeID, v.Data), v.ParentKey, true
	default:
		return nil, "", false
	}
}
