package notification

import (
	"testing"

	"github.com/ksred/tradedesk-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyListMarkRead(t *testing.T) {
	svc := NewService(testutil.OpenDB(t, &Notification{}))

	first, err := svc.Notify("USR_1", "Trade won", "first")
	require.NoError(t, err)
	_, err = svc.Notify("USR_1", "Trade lost", "second")
	require.NoError(t, err)
	_, err = svc.Notify("USR_2", "Trade won", "other user")
	require.NoError(t, err)

	all, err := svc.List("USR_1", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Message)

	require.NoError(t, svc.MarkRead("USR_1", first.NotificationID))

	unread, err := svc.List("USR_1", true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "second", unread[0].Message)

	// Users cannot touch each other's notifications
	assert.ErrorIs(t, svc.MarkRead("USR_2", first.NotificationID), ErrNotificationNotFound)
	assert.ErrorIs(t, svc.MarkRead("USR_1", "NTF_missing"), ErrNotificationNotFound)

	updated, err := svc.MarkAllRead("USR_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	unread, err = svc.List("USR_1", true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	others, err := svc.List("USR_2", true)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
