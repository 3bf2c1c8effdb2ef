package services

import (
	"context"
	"testing"
	"time"

	"aslab_go/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rfidFixture(t *testing.T) *RFIDService {
	t.Helper()
	store := cache.NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)
	return NewRFIDService(newDB(t), store)
}

func TestRFIDMode(t *testing.T) {
	ctx := context.Background()
	svc := rfidFixture(t)

	assert.Equal(t, RFIDModeDefault, svc.Mode(ctx))
	require.NoError(t, svc.SetMode(ctx, RFIDModeCheckIn))
	assert.Equal(t, RFIDModeCheckIn, svc.Mode(ctx))
	assert.ErrorIs(t, svc.SetMode(ctx, "party"), ErrValidation)
	assert.Equal(t, RFIDModeCheckIn, svc.Mode(ctx))
}

func TestRFIDRegistrationFlow(t *testing.T) {
	ctx := context.Background()
	svc := rfidFixture(t)
	owner := createUser(t, svc.db, "owner", withRFID("AAA111"))
	u := createUser(t, svc.db, "newbie")

	scan, err := svc.ScanForRegistration(ctx, "bbb222")
	require.NoError(t, err)
	assert.True(t, scan.Available)
	assert.Equal(t, "BBB222", scan.RFIDCode)

	last, err := svc.PullLastScan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BBB222", last.RFIDCode)
	_, err = svc.PullLastScan(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	scan, err = svc.ScanForRegistration(ctx, "aaa111")
	assert.ErrorIs(t, err, ErrRFIDTaken)
	require.NotNil(t, scan.RegisteredTo)
	assert.Equal(t, owner.ID, scan.RegisteredTo.ID)

	_, err = svc.Register(ctx, u.ID, "aaa111")
	assert.ErrorIs(t, err, ErrRFIDTaken)
	assert.Equal(t, "RFID sudah terdaftar untuk user: owner", PublicMessage(err, ""))

	got, err := svc.Register(ctx, u.ID, " bbb222 ")
	require.NoError(t, err)
	assert.Equal(t, "BBB222", *got.RFIDCode)

	_, err = svc.Register(ctx, 999, "CCC")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Unregister(ctx, u.ID))
	aslabs, err := svc.Aslabs(ctx)
	require.NoError(t, err)
	require.Len(t, aslabs, 2)
	assert.Nil(t, aslabs[0].RFIDCode)
	assert.Equal(t, "newbie", aslabs[0].Name)
}
