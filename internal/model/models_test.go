package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey_ExpiresAt(t *testing.T) {
	created := time.Date(2026, 1, 30, 23, 15, 0, 0, time.UTC)
	k := Key{CreatedAt: created, ExpiryDays: 30}
	assert.Equal(t, time.Date(2026, 3, 1, 23, 15, 0, 0, time.UTC), k.ExpiresAt())
}

func TestGames(t *testing.T) {
	assert.True(t, IsGame(GameStandoff2))
	assert.False(t, IsGame("standoff2"))

	name, ok := GameBySlug("lastisland")
	assert.True(t, ok)
	assert.Equal(t, GameLastIsland, name)

	_, ok = GameBySlug("LASTISLAND")
	assert.False(t, ok)
}

func TestReseller_Public(t *testing.T) {
	r := Reseller{Username: "bob", PasswordHash: "$2a$..."}
	assert.Empty(t, r.Public().PasswordHash)
	assert.NotEmpty(t, r.PasswordHash)
}
