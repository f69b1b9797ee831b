package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"keygate/internal/apperror"
	"keygate/internal/auth"
	"keygate/internal/model"
	"keygate/internal/repository"
	"keygate/internal/service"
	"keygate/internal/store"
)

func TestHandler_Verify(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewLedgerRepo(store.NewMemory(), repository.Options{Timeout: time.Second})
	svc := service.New(repo, nil,
		auth.NewBcryptPasswordHasher(bcrypt.MinCost),
		auth.NewJWTService("test-secret", time.Hour),
	)
	token, err := svc.GenerateToken(ctx)
	require.NoError(t, err)
	_, err = svc.Register(ctx, model.RegisterRequest{Username: "bob", Password: "secret-pw", ReferralToken: token})
	require.NoError(t, err)
	key, err := svc.IssueKey(ctx, model.IssueKeyRequest{Username: "bob", GameName: model.GameLastIsland, DeviceLimit: 1, ExpiryDays: 2})
	require.NoError(t, err)

	h := NewHandler(svc, nil, nil)
	payload := func(ip string) []byte {
		data, err := json.Marshal(model.VerifyRequest{KeyValue: key.KeyValue, GameName: model.GameLastIsland, IP: ip})
		require.NoError(t, err)
		return data
	}

	reply := h.verify(ctx, payload("1.2.3.4"))
	assert.True(t, reply.Success)
	assert.Equal(t, key.ID, reply.KeyID)

	reply = h.verify(ctx, payload("4.3.2.1"))
	assert.False(t, reply.Success)
	assert.Equal(t, apperror.KindKeyInUse, reply.Kind)

	reply = h.verify(ctx, []byte("{"))
	assert.Equal(t, apperror.KindValidation, reply.Kind)

	reply = h.verify(ctx, []byte(`{"key":"x","game_name":"STANDOFF2"}`))
	assert.Equal(t, apperror.KindValidation, reply.Kind)

	usage, err := svc.ListUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 4)
	for i, want := range []bool{true, false, false, false} {
		assert.Equal(t, SubjectVerify, usage[i].Endpoint)
		assert.Equal(t, "NATS", usage[i].Method)
		assert.Equal(t, want, usage[i].Success)
	}
	assert.Equal(t, "1.2.3.4", usage[0].IP)
}
