package crdt

import (
	"fmt"
	"sort"
)

// Load builds the tree from a flat INITIAL_STORAGE_STATE item list when
// no root exists locally yet, per SPEC_FULL.md §4.5. Exactly one item
// must be the root (ParentID == "").
func Load(reg *Registry, items []SerializedCrdt) error {
	if len(items) == 0 {
		return fmt.Errorf("crdt: load: empty item list")
	}

	byParent := map[string][]SerializedCrdt{}
	var rootItem *SerializedCrdt
	for i := range items {
		it := items[i]
		if it.ParentID == "" {
			if rootItem != nil {
				return fmt.Errorf("crdt: load: more than one root item")
			}
			rootItem = &it
			continue
		}
		byParent[it.ParentID] = append(byParent[it.ParentID], it)
	}
	if rootItem == nil {
		return fmt.Errorf("crdt: load: no root item found")
	}

	root := NewObjectNode(reg, rootItem.ID, rootItem.Data)
	reg.Add(root)
	reg.SetRoot(root.ID())

	var attach func(parentID string)
	attach = func(parentID string) {
		children := byParent[parentID]
		sort.Slice(children, func(i, j int) bool { return children[i].ParentKey < children[j].ParentKey })
		for _, it := range children {
			node := instantiate(reg, it)
			reg.Add(node)
			node.setParent(ParentRef{Kind: ParentHasParent, Parent: parentID, Key: it.ParentKey})
			if ln, ok := parentNode(reg, parentID).(*ListNode); ok {
				ln.items = append(ln.items, ChildRef{Key: it.ParentKey, ChildID: it.ID})
			}
			attach(it.ID)
		}
	}
	attach(rootItem.ID)
	return nil
}

func parentNode(reg *Registry, id string) Node {
	n, _ := reg.Get(id)
	return n
}

func instantiate(reg *Registry, it SerializedCrdt) Node {
	switch it.Type {
	case TypeObject:
		return NewObjectNode(reg, it.ID, it.Data)
	case TypeList:
		return NewListNode(reg, it.ID)
	case TypeMap:
		return NewMapNode(reg, it.ID)
	case TypeRegister:
		return NewRegisterNode(reg, it.ID, it.Data["value"])
	default:
		return NewObjectNode(reg, it.ID, it.Data)
	}
}

// ApplyDefaults writes any key present in defaults but absent from the
// root object directly into its data, bypassing the op pipeline — this
// is how a brand-new room is seeded with its caller-provided initial
// shape (SPEC_FULL.md §4.5), not a replicated mutation.
func ApplyDefaults(reg *Registry, defaults Data) {
	root, ok := reg.Root()
	if !ok {
		return
	}
	obj, ok := root.(*ObjectNode)
	if !ok {
		return
	}
	for k, v := range defaults {
		if _, exists := obj.data[k]; !exists {
			obj.data[k] = v
		}
	}
}

// DiffOps computes a synthetic op stream that transforms the tree
// described by current into the tree described by incoming, for the
// "root already exists locally" reconciliation path of SPEC_FULL.md
// §4.5. It is a structural diff, not a full CRDT merge: list-child
// reordering is detected per changed position key, object fields are
// diffed key-by-key, and every node present only on one side becomes
// its own Create or Delete op.
func DiffOps(current, incoming map[string]SerializedCrdt) []Op {
	var ops []Op

	for id, inc := range incoming {
		cur, existed := current[id]
		if !existed {
			ops = append(ops, createOpFor(inc))
			continue
		}
		if inc.Type == TypeObject {
			if op := diffObjectData(id, cur.Data, inc.Data); op != nil {
				ops = append(ops, op)
			}
			for k := range cur.Data {
				if _, still := inc.Data[k]; !still {
					ops = append(ops, &DeleteObjectKey{NodeID: id, Key: k})
				}
			}
		}
		if inc.Type == TypeList {
			curKeys := map[string]string{}
			for _, c := range cur.Children {
				curKeys[c.ChildID] = c.Key
			}
			for _, c := range inc.Children {
				if curKeys[c.ChildID] != c.Key {
					ops = append(ops, &SetParentKey{NodeID: c.ChildID, ParentKey: c.Key})
				}
			}
		}
	}

	for id := range current {
		if _, still := incoming[id]; !still {
			ops = append(ops, &DeleteCrdt{NodeID: id})
		}
	}

	// Deterministic order keeps diffs reproducible for tests.
	sort.Slice(ops, func(i, j int) bool { return opSortKey(ops[i]) < opSortKey(ops[j]) })
	return ops
}

func opSortKey(op Op) string {
	switch v := op.(type) {
	case *CreateObject:
		return "0:" + v.NodeID
	case *CreateList:
		return "0:" + v.NodeID
	case *CreateMap:
		return "0:" + v.NodeID
	case *CreateRegister:
		return "0:" + v.NodeID
	case *UpdateObject:
		return "1:" + v.NodeID
	case *DeleteObjectKey:
		return "2:" + v.NodeID + ":" + v.Key
	case *SetParentKey:
		return "3:" + v.NodeID
	case *DeleteCrdt:
		return "4:" + v.NodeID
	default:
		return "9"
	}
}

func createOpFor(it SerializedCrdt) Op {
	switch it.Type {
	case TypeList:
		return &CreateList{NodeID: it.ID, ParentID: it.ParentID, ParentKey: it.ParentKey}
	case TypeMap:
		return &CreateMap{NodeID: it.ID, ParentID: it.ParentID, ParentKey: it.ParentKey}
	case TypeRegister:
		return &CreateRegister{NodeID: it.ID, ParentID: it.ParentID, ParentKey: it.ParentKey, Data: it.Data["value"]}
	default:
		return &CreateObject{NodeID: it.ID, ParentID: it.ParentID, ParentKey: it.ParentKey, Data: it.Data}
	}
}

func diffObjectData(nodeID string, cur, inc Data) Op {
	changed := Data{}
	for k, v := range inc {
		if old, ok := cur[k]; !ok || string(old) != string(v) {
			changed[k] = v
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return &UpdateObject{NodeID: nodeID, Data: changed}
}

// Snapshot serializes every node in reg to its SerializedCrdt form,
// keyed by id, for use as the "current" side of DiffOps.
func Snapshot(reg *Registry) map[string]SerializedCrdt {
	nodes := reg.Snapshot()
	out := make(map[string]SerializedCrdt, len(nodes))
	for id, n := range nodes {
		out[id] = n.ToSerializedForm()
	}
	return out
}
