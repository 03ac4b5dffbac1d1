package crdt

import (
	"math/big"
	"sort"
	"strings"
)

// ListNode holds an ordered sequence of CRDT children. Order is
// maintained by fractional position keys (see KeyBetween) rather than
// integer indices, so two replicas can each insert between the same
// pair of existing items without the server needing to renumber
// anything — the inserted keys simply interleave.
type ListNode struct {
	base
	items []ChildRef // kept sorted by Key
}

// NewListNode constructs a detached, empty ListNode.
func NewListNode(reg *Registry, id string) *ListNode {
	return &ListNode{base: base{id: id, reg: reg}}
}

func (l *ListNode) ToSerializedForm() SerializedCrdt {
	s := SerializedCrdt{ID: l.id, Type: TypeList, Children: append([]ChildRef(nil), l.items...)}
	if l.parent.Kind == ParentHasParent {
		s.ParentID = l.parent.Parent
		s.ParentKey = l.parent.Key
	}
	return s
}

func (l *ListNode) indexOfChild(childID string) int {
	for i, c := range l.items {
		if c.ChildID == childID {
			return i
		}
	}
	return -1
}

func (l *ListNode) insert(key, childID string) {
	i := sort.Search(len(l.items), func(i int) bool { return l.items[i].Key >= key })
	l.items = append(l.items, ChildRef{})
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = ChildRef{Key: key, ChildID: childID}
}

func (l *ListNode) Apply(op Op, source OpSource) ApplyResult {
	if _, ok := op.(*DeleteCrdt); !ok {
		return notModified
	}
	recreate := &CreateList{NodeID: l.id}
	if l.parent.Kind == ParentHasParent {
		recreate.ParentID = l.parent.Parent
		recreate.ParentKey = l.parent.Key
	}
	return l.applyDelete(recreate)
}

func (l *ListNode) AttachChild(op Op, source OpSource) ApplyResult {
	child, key, ok := instantiateChild(l.reg, op)
	if !ok || key == "" {
		return notModified
	}
	l.reg.Add(child)
	child.setParent(ParentRef{Kind: ParentHasParent, Parent: l.id, Key: key})
	l.insert(key, child.ID())
	update := newStorageUpdate(child.ID(), UpdateKindUpdate)
	update.ParentID = l.id
	return ApplyResult{
		Modified: true,
		Update:   update,
		Reverse:  []Op{&DeleteCrdt{NodeID: child.ID()}},
	}
}

func (l *ListNode) SetChildKey(key string, child Node, source OpSource) ApplyResult {
	i := l.indexOfChild(child.ID())
	if i < 0 {
		return notModified
	}
	oldKey := l.items[i].Key
	if oldKey == key {
		return notModified
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	l.insert(key, child.ID())
	child.setParent(ParentRef{Kind: ParentHasParent, Parent: l.id, Key: key})
	return ApplyResult{
		Modified: true,
		Update:   newStorageUpdate(l.id, UpdateKindUpdate),
		Reverse:  []Op{&SetParentKey{NodeID: child.ID(), ParentKey: oldKey}},
	}
}

// keyAlphabet-free fractional keys: a key is the decimal digit string of
// a fraction in [0, 1), e.g. "5" means 0.5. KeyBetween(a, b) returns a
// fresh key k with a < k < b as plain Go string comparison (treating ""
// as the corresponding open bound), which is exactly how ListNode orders
// items.
func KeyBetween(a, b string) string {
	ra := parseKeyFraction(a, big.NewRat(0, 1))
	rb := parseKeyFraction(b, big.NewRat(1, 1))
	mid := new(big.Rat).Add(ra, rb)
	mid.Quo(mid, big.NewRat(2, 1))
	return formatKeyFraction(mid)
}

func parseKeyFraction(s string, fallback *big.Rat) *big.Rat {
	if s == "" {
		return fallback
	}
	num, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fallback
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(s))), nil)
	return new(big.Rat).SetFrac(num, denom)
}

const keyFractionDigits = 24

func formatKeyFraction(r *big.Rat) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(keyFractionDigits), nil)
	scaled := new(big.Int).Mul(r.Num(), scale)
	scaled.Quo(scaled, r.Denom())
	s := scaled.String()
	for len(s) < keyFractionDigits {
		s = "0" + s
	}
	s = strings.TrimRight(s, "0")
	if s == "" {
		s = "0"
	}
	return s
}
