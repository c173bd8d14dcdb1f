package dialog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wholesale-bot/resolver/pkg/clarify"
)

func TestStoreGetReturnsZeroValueForUnknownChat(t *testing.T) {
	s := NewStore(DefaultTTL, nil)
	dc := s.Get(context.Background(), "unknown")
	assert.Equal(t, "unknown", dc.ChatID)
	assert.Nil(t, dc.OrgID)
}

func TestStoreSaveThenGetRoundTrips(t *testing.T) {
	s := NewStore(DefaultTTL, nil)
	ctx := context.Background()
	orgID := int64(7)
	s.Save(ctx, Context{ChatID: "chat-1", OrgID: &orgID, Topic: "eta", ClarifyOffset: 10})

	got := s.Get(ctx, "chat-1")
	require.NotNil(t, got.OrgID)
	assert.Equal(t, int64(7), *got.OrgID)
	assert.Equal(t, "eta", got.Topic)
	assert.Equal(t, 10, got.ClarifyOffset)
}

func TestStoreGetExpiresEntriesPastTTL(t *testing.T) {
	s := NewStore(1 * time.Millisecond, nil)
	ctx := context.Background()
	s.Save(ctx, Context{ChatID: "chat-2", Topic: "eta"})
	time.Sleep(5 * time.Millisecond)

	got := s.Get(ctx, "chat-2")
	assert.Empty(t, got.Topic)
}

func TestStoreClarificationRoundTripsInMemory(t *testing.T) {
	s := NewStore(DefaultTTL, nil)
	ctx := context.Background()
	_, ok := s.GetClarification(ctx, "chat-3", "msg-1")
	assert.False(t, ok)

	s.SaveClarification(ctx, "chat-3", "msg-1", clarify.Clarification{Question: "Уточни товар:", Total: 1})
	got, ok := s.GetClarification(ctx, "chat-3", "msg-1")
	require.True(t, ok)
	assert.Equal(t, "Уточни товар:", got.Question)
	assert.Equal(t, 1, got.Total)
}
