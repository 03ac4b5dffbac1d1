package crdt

import (
	"encoding/json"
	"fmt"
)

// String names a NodeType for the wire item's "type" field.
func (t NodeType) String() string {
	switch t {
	case TypeObject:
		return "Object"
	case TypeList:
		return "List"
	case TypeMap:
		return "Map"
	case TypeRegister:
		return "Register"
	case TypeRoot:
		return "Root"
	default:
		return "Unknown"
	}
}

func parseNodeType(s string) (NodeType, error) {
	switch s {
	case "Object":
		return TypeObject, nil
	case "List":
		return TypeList, nil
	case "Map":
		return TypeMap, nil
	case "Register":
		return TypeRegister, nil
	case "Root":
		return TypeRoot, nil
	default:
		return 0, fmt.Errorf("crdt: unknown node type %q", s)
	}
}

// wireOp is the flattened, self-describing JSON shape every concrete Op
// round-trips through. A single struct (rather than one per op kind)
// keeps encode/decode symmetric and keeps the wire package ignorant of
// crdt's concrete op types: ops cross the wire as plain JSON and are
// decoded into the tagged Op sum type here, at the boundary.
type wireOp struct {
	Type      string          `json:"type"`
	OpID      string          `json:"opId,omitempty"`
	ID        string          `json:"id,omitempty"`
	ParentID  string          `json:"parentId,omitempty"`
	ParentKey string          `json:"parentKey,omitempty"`
	Key       string          `json:"key,omitempty"`
	Data      Data            `json:"data,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// EncodeOp renders op to the wire's flattened JSON shape.
func EncodeOp(op Op) (json.RawMessage, error) {
	w := wireOp{Type: op.Kind().String(), OpID: op.ID()}
	switch v := op.(type) {
	case *CreateObject:
		w.ID, w.ParentID, w.ParentKey, w.Data = v.NodeID, v.ParentID, v.ParentKey, v.Data
	case *CreateList:
		w.ID, w.ParentID, w.ParentKey = v.NodeID, v.ParentID, v.ParentKey
	case *CreateMap:
		w.ID, w.ParentID, w.ParentKey = v.NodeID, v.ParentID, v.ParentKey
	case *CreateRegister:
		w.ID, w.ParentID, w.ParentKey, w.Value = v.NodeID, v.ParentID, v.ParentKey, v.Data
	case *UpdateObject:
		w.ID, w.Data = v.NodeID, v.Data
	case *DeleteObjectKey:
		w.ID, w.Key = v.NodeID, v.Key
	case *DeleteCrdt:
		w.ID = v.NodeID
	case *SetParentKey:
		w.ID, w.ParentKey = v.NodeID, v.ParentKey
	default:
		return nil, fmt.Errorf("crdt: encode op: unsupported op type %T", op)
	}
	return json.Marshal(w)
}

// DecodeOp parses one wire op back into its concrete Op type.
func DecodeOp(raw json.RawMessage) (Op, error) {
	var w wireOp
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("crdt: decode op: %w", err)
	}

	var op Op
	switch parseOpCode(w.Type) {
	case OpCreateObject:
		op = &CreateObject{NodeID: w.ID, ParentID: w.ParentID, ParentKey: w.ParentKey, Data: w.Data}
	case OpCreateList:
		op = &CreateList{NodeID: w.ID, ParentID: w.ParentID, ParentKey: w.ParentKey}
	case OpCreateMap:
		op = &CreateMap{NodeID: w.ID, ParentID: w.ParentID, ParentKey: w.ParentKey}
	case OpCreateRegister:
		op = &CreateRegister{NodeID: w.ID, ParentID: w.ParentID, ParentKey: w.ParentKey, Data: w.Value}
	case OpUpdateObject:
		op = &UpdateObject{NodeID: w.ID, Data: w.Data}
	case OpDeleteObjectKey:
		op = &DeleteObjectKey{NodeID: w.ID, Key: w.Key}
	case OpDeleteCrdt:
		op = &DeleteCrdt{NodeID: w.ID}
	case OpSetParentKey:
		op = &SetParentKey{NodeID: w.ID, ParentKey: w.ParentKey}
	default:
		return nil, fmt.Errorf("crdt: decode op: unknown type %q", w.Type)
	}
	op.SetID(w.OpID)
	return op, nil
}

// parseOpCode is the inverse of OpCode.String.
func parseOpCode(s string) OpCode {
	switch s {
	case "CREATE_OBJECT":
		return OpCreateObject
	case "CREATE_LIST":
		return OpCreateList
	case "CREATE_MAP":
		return OpCreateMap
	case "CREATE_REGISTER":
		return OpCreateRegister
	case "UPDATE_OBJECT":
		return OpUpdateObject
	case "DELETE_OBJECT_KEY":
		return OpDeleteObjectKey
	case "DELETE_CRDT":
		return OpDeleteCrdt
	case "SET_PARENT_KEY":
		return OpSetParentKey
	default:
		return 0
	}
}

// EncodeOps encodes each op in order.
func EncodeOps(ops []Op) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		raw, err := EncodeOp(op)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// DecodeOps decodes each raw op in order.
func DecodeOps(raws []json.RawMessage) ([]Op, error) {
	out := make([]Op, 0, len(raws))
	for _, raw := range raws {
		op, err := DecodeOp(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// wireItem is SerializedCrdt's wire shape, used for INITIAL_STORAGE_STATE
// item lists.
type wireItem struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	ParentID  string      `json:"parentId,omitempty"`
	ParentKey string      `json:"parentKey,omitempty"`
	Data      Data        `json:"data,omitempty"`
	Children  []ChildRef  `json:"children,omitempty"`
}

// EncodeItem renders one node's serialized form to wire JSON.
func EncodeItem(it SerializedCrdt) (json.RawMessage, error) {
	w := wireItem{
		ID:        it.ID,
		Type:      it.Type.String(),
		ParentID:  it.ParentID,
		ParentKey: it.ParentKey,
		Data:      it.Data,
		Children:  it.Children,
	}
	return json.Marshal(w)
}

// DecodeItem parses one wire item back into a SerializedCrdt.
func DecodeItem(raw json.RawMessage) (SerializedCrdt, error) {
	var w wireItem
	if err := json.Unmarshal(raw, &w); err != nil {
		return SerializedCrdt{}, fmt.Errorf("crdt: decode item: %w", err)
	}
	typ, err := parseNodeType(w.Type)
	if err != nil {
		return SerializedCrdt{}, err
	}
	return SerializedCrdt{
		ID:        w.ID,
		Type:      typ,
		ParentID:  w.ParentID,
		ParentKey: w.ParentKey,
		Data:      w.Data,
		Children:  w.Children,
	}, nil
}

// EncodeItems encodes each item in order.
func EncodeItems(items []SerializedCrdt) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		raw, err := EncodeItem(it)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// DecodeItems decodes each raw item in order.
func DecodeItems(raws []json.RawMessage) ([]SerializedCrdt, error) {
	out := make([]SerializedCrdt, 0, len(raws))
	for _, raw := range raws {
		it, err := DecodeItem(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}
