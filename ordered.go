package minipy

import (
	"math"
	"reflect"
)

// Keys are encoded by payload for primitive-backed values (numbers, str,
// bool, None and tuples of those) and by identity for everything else.

func hashable(key *Thing) bool {
	switch data := key.Primitive.(type) {
	case *ListData, *Dict, *Set:
		return false
	case *TupleData:
		for _, element := range data.Elements {
			if !hashable(element) {
				return false
			}
		}
	}
	return true
}

func keyHash(key *Thing) uint64 {
	switch data := key.Primitive.(type) {
	case noneValue:
		return 0x9e3779b97f4a7c15
	case bool:
		if data {
			return 1
		}
		return 0
	case int64:
		return uint64(data)
	case float64:
		if data == math.Trunc(data) && math.Abs(data) < 1<<63 {
			return uint64(int64(data))
		}
		return math.Float64bits(data)
	case string:
		return fnv1a(data)
	case *TupleData:
		var hash uint64 = 14695981039346656037
		for _, element := range data.Elements {
			hash ^= keyHash(element)
			hash *= 1099511628211
		}
		return hash
	}
	return uint64(reflect.ValueOf(key).Pointer())
}

func keyEqual(a, b *Thing) bool {
	switch x := a.Primitive.(type) {
	case int64:
		switch y := b.Primitive.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.Primitive.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case string, bool, noneValue:
		return a.Primitive == b.Primitive
	case *TupleData:
		y, ok := b.Primitive.(*TupleData)
		if !ok || len(x.Elements) != len(y.Elements) {
			return false
		}
		for i := range x.Elements {
			if !keyEqual(x.Elements[i], y.Elements[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

type DictElement struct {
	prev  *DictElement
	next  *DictElement
	hash  uint64
	Key   *Thing
	Value *Thing
}

// Dict is an insertion-ordered hash map keyed by Things. The zero value is
// an empty dict.
type Dict struct {
	buckets map[uint64][]*DictElement
	head    *DictElement
	tail    *DictElement
	count   int
}

func (self *Dict) Len() int {
	return self.count
}

// Returns nil on lookup failure.
func (self *Dict) element(key *Thing, hash uint64) *DictElement {
	for _, element := range self.buckets[hash] {
		if keyEqual(element.Key, key) {
			return element
		}
	}
	return nil
}

// Returns nil on lookup failure.
func (self *Dict) Lookup(key *Thing) *Thing {
	element := self.element(key, keyHash(key))
	if element == nil {
		return nil
	}
	return element.Value
}

func (self *Dict) Insert(key, value *Thing) {
	if self.buckets == nil {
		self.buckets = make(map[uint64][]*DictElement)
	}

	hash := keyHash(key)
	if lookup := self.element(key, hash); lookup != nil {
		lookup.Value = value
		return
	}

	element := &DictElement{
		prev:  self.tail,
		hash:  hash,
		Key:   key,
		Value: value,
	}
	self.buckets[hash] = append(self.buckets[hash], element)
	if self.tail != nil {
		self.tail.next = element
	} else {
		self.head = element
	}
	self.tail = element
	self.count += 1
}

func (self *Dict) Remove(key *Thing) bool {
	hash := keyHash(key)
	bucket := self.buckets[hash]
	var lookup *DictElement
	for i := 0; i < len(bucket); i += 1 {
		if keyEqual(bucket[i].Key, key) {
			lookup = bucket[i]
			self.buckets[hash] = append(bucket[:i:i], bucket[i+1:]...)
			if len(self.buckets[hash]) == 0 {
				delete(self.buckets, hash)
			}
			break
		}
	}
	if lookup == nil {
		return false
	}

	if self.head == lookup {
		self.head = lookup.next
	}
	if self.tail == lookup {
		self.tail = lookup.prev
	}
	if lookup.prev != nil {
		lookup.prev.next = lookup.next
	}
	if lookup.next != nil {
		lookup.next.prev = lookup.prev
	}
	self.count -= 1
	return true
}

func (self *Dict) Clear() {
	*self = Dict{}
}

// Elements returns a snapshot of the entries in insertion order.
func (self *Dict) Elements() []*DictElement {
	elements := make([]*DictElement, 0, self.count)
	for cur := self.head; cur != nil; cur = cur.next {
		elements = append(elements, cur)
	}
	return elements
}

func (self *Dict) Keys() []*Thing {
	keys := make([]*Thing, 0, self.count)
	for cur := self.head; cur != nil; cur = cur.next {
		keys = append(keys, cur.Key)
	}
	return keys
}

func (self *Dict) Copy() *Dict {
	result := &Dict{}
	for cur := self.head; cur != nil; cur = cur.next {
		result.Insert(cur.Key, cur.Value)
	}
	return result
}

// Set is an insertion-ordered hash set of Things.
type Set struct {
	dict Dict
}

func (self *Set) Len() int {
	return self.dict.Len()
}

func (self *Set) Contains(key *Thing) bool {
	return self.dict.element(key, keyHash(key)) != nil
}

func (self *Set) Insert(key *Thing) {
	if !self.Contains(key) {
		self.dict.Insert(key, key)
	}
}

func (self *Set) Remove(key *Thing) bool {
	return self.dict.Remove(key)
}

func (self *Set) Clear() {
	self.dict.Clear()
}

func (self *Set) Elements() []*Thing {
	return self.dict.Keys()
}

func (self *Set) Copy() *Set {
	return &Set{dict: *self.dict.Copy()}
}
