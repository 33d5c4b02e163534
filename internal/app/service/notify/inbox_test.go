package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInbox_NotifyAndDrain(t *testing.T) {
	b := NewInbox(zap.NewNop().Sugar(), 3)

	b.Info("u1", "Success", "Subscription activated successfully!")
	b.Error("u1", "Purchase Error", "receipt rejected")
	b.Info("u2", "Success", "Purchases restored successfully")
	require.Equal(t, 2, b.Pending("u1"))

	got := b.Drain("u1")
	require.Len(t, got, 2)
	require.Equal(t, LevelInfo, got[0].Level)
	require.Equal(t, "Purchase Error", got[1].Title)
	require.NotEmpty(t, got[0].ID)
	require.False(t, got[0].CreatedAt.IsZero())

	require.Empty(t, b.Drain("u1"))
	require.Equal(t, 1, b.Pending("u2"))
}

func TestInbox_DropsOldestWhenFull(t *testing.T) {
	b := NewInbox(zap.NewNop().Sugar(), 2)
	for i := 0; i < 5; i++ {
		b.Info("u1", "n", fmt.Sprint(i))
	}
	got := b.Drain("u1")
	require.Len(t, got, 2)
	require.Equal(t, "3", got[0].Message)
	require.Equal(t, "4", got[1].Message)
}

func TestInbox_AnonymousIsNotQueued(t *testing.T) {
	b := NewInbox(zap.NewNop().Sugar(), 2)
	b.Error("", "Purchase Failed", "login first")
	require.Empty(t, b.Drain(""))
}
