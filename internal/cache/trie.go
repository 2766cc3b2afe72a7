package cache

import (
	"github.com/tchap/go-patricia/v2/patricia"
)

// idSet is an insertion-ordered set of contact ids stored at each trie key
type idSet struct {
	ids []int64
}

func (s *idSet) add(id int64) {
	for _, existing := range s.ids {
		if existing == id {
			return
		}
	}
	s.ids = append(s.ids, id)
}

// prefixIndex maps lowercased keys to the ids of contacts that produced them
type prefixIndex struct {
	trie *patricia.Trie

	// single keeps one id per key; a later insert overwrites the earlier one
	single bool
}

func newPrefixIndex(single bool) *prefixIndex {
	return &prefixIndex{trie: patricia.NewTrie(), single: single}
}

func (p *prefixIndex) insert(key string, id int64) {
	if key == "" {
		return
	}
	k := patricia.Prefix(key)
	if p.single {
		p.trie.Set(k, &idSet{ids: []int64{id}})
		return
	}
	if item := p.trie.Get(k); item != nil {
		item.(*idSet).add(id)
		return
	}
	p.trie.Insert(k, &idSet{ids: []int64{id}})
}

// exact returns the ids stored under key
func (p *prefixIndex) exact(key string) []int64 {
	if key == "" {
		return nil
	}
	item := p.trie.Get(patricia.Prefix(key))
	if item == nil {
		return nil
	}
	return item.(*idSet).ids
}

// withPrefix returns ids of every key starting with prefix, flattened in trie order
func (p *prefixIndex) withPrefix(prefix string) []int64 {
	var ids []int64
	_ = p.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		ids = append(ids, item.(*idSet).ids...)
		return nil
	})
	return ids
}

// keys returns every stored key starting with prefix
func (p *prefixIndex) keys(prefix string) []string {
	var keys []string
	_ = p.trie.VisitSubtree(patricia.Prefix(prefix), func(k patricia.Prefix, _ patricia.Item) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys
}
