package keyindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_ReserveAndRelease(t *testing.T) {
	ix := New()
	l := Lookup{KeyValue: "abc", GameName: "PUBG MOBILE"}

	assert.True(t, ix.Reserve(l, Entry{Username: "bob", KeyID: "k1"}))
	assert.True(t, ix.Reserve(l, Entry{Username: "bob", KeyID: "k1"}), "same entry re-reserves")
	assert.False(t, ix.Reserve(l, Entry{Username: "amy", KeyID: "k2"}))

	// Releasing with the wrong key id keeps the owner.
	ix.Release(l, "k2")
	e, ok := ix.Get(l)
	assert.True(t, ok)
	assert.Equal(t, "k1", e.KeyID)

	ix.Release(l, "k1")
	_, ok = ix.Get(l)
	assert.False(t, ok)
}

func TestIndex_MatchIsExact(t *testing.T) {
	ix := New()
	ix.Reserve(Lookup{KeyValue: "abc", GameName: "PUBG MOBILE"}, Entry{Username: "bob", KeyID: "k1"})

	_, ok := ix.Get(Lookup{KeyValue: "abc", GameName: "pubg mobile"})
	assert.False(t, ok)
	_, ok = ix.Get(Lookup{KeyValue: "ABC", GameName: "PUBG MOBILE"})
	assert.False(t, ok)
	_, ok = ix.Get(Lookup{KeyValue: "abc", GameName: "STANDOFF2"})
	assert.False(t, ok)
}

func TestIndex_DropOwnerAndReplace(t *testing.T) {
	ix := New()
	ix.Reserve(Lookup{"a", "STANDOFF2"}, Entry{"bob", "k1"})
	ix.Reserve(Lookup{"b", "STANDOFF2"}, Entry{"bob", "k2"})
	ix.Reserve(Lookup{"c", "STANDOFF2"}, Entry{"amy", "k3"})

	assert.Equal(t, 2, ix.DropOwner("bob"))
	assert.Equal(t, 1, ix.Len())

	ix.Replace(map[Lookup]Entry{{"z", "PUBG MOBILE"}: {"eve", "k9"}})
	assert.Equal(t, 1, ix.Len())
	e, ok := ix.Get(Lookup{"z", "PUBG MOBILE"})
	assert.True(t, ok)
	assert.Equal(t, "eve", e.Username)
}
