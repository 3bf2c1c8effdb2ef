package services

import (
	"context"
	"sort"
	"sync"
	"testing"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAutoRoundRobin(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewPiketService(db)
	svc.shuffle = func(int, func(i, j int)) {} // keep id order

	var ids []uint
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		ids = append(ids, createUser(t, db, n, withPiket("jumat")).ID)
	}
	off := createUser(t, db, "off", withPiket("senin"), inactive())
	createUser(t, db, "mhs", withRole(models.RoleMahasiswa), withPiket("rabu"))

	n, err := svc.GenerateAuto(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	want := []string{"senin", "selasa", "rabu", "kamis", "jumat", "senin", "selasa"}
	for i, id := range ids {
		var u models.User
		require.NoError(t, db.First(&u, id).Error)
		require.NotNil(t, u.PiketDay)
		assert.Equal(t, want[i], *u.PiketDay)
	}

	var got models.User
	require.NoError(t, db.First(&got, off.ID).Error)
	assert.Nil(t, got.PiketDay, "inactive aslabs lose their day")

	sched, err := svc.Index(ctx)
	require.NoError(t, err)
	assert.Len(t, sched.Days["senin"], 2)
	assert.Len(t, sched.Days["kamis"], 1)
	assert.Empty(t, sched.Unassigned)
}

func TestGenerateAutoShuffles(t *testing.T) {
	db := newDB(t)
	svc := NewPiketService(db)
	called := 0
	svc.shuffle = func(n int, swap func(i, j int)) {
		called = n
		swap(0, n-1)
	}
	first := createUser(t, db, "first")
	createUser(t, db, "mid")
	last := createUser(t, db, "last")

	_, err := svc.GenerateAuto(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, called)

	var u models.User
	require.NoError(t, db.First(&u, last.ID).Error)
	assert.Equal(t, "senin", *u.PiketDay)
	require.NoError(t, db.First(&u, first.ID).Error)
	assert.Equal(t, "rabu", *u.PiketDay)
}

func TestPiketManualSwapBatchReset(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewPiketService(db)
	a := createUser(t, db, "a", withPiket("senin"))
	b := createUser(t, db, "b")
	mhs := createUser(t, db, "m", withRole(models.RoleMahasiswa))

	assert.ErrorIs(t, svc.UpdateManual(ctx, a.ID, strPtr("sabtu")), ErrValidation)
	assert.ErrorIs(t, svc.UpdateManual(ctx, mhs.ID, strPtr("senin")), ErrNotFound)
	require.NoError(t, svc.UpdateManual(ctx, b.ID, strPtr("kamis")))

	from, to, err := svc.Swap(ctx, a.ID, strPtr("rabu"))
	require.NoError(t, err)
	assert.Equal(t, "senin", *from)
	assert.Equal(t, "rabu", *to)

	_, err = svc.BatchUpdate(ctx, []PiketUpdate{
		{UserID: a.ID, NewPiketDay: strPtr("selasa")},
		{UserID: 9999, NewPiketDay: strPtr("selasa")},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	var u models.User
	require.NoError(t, db.First(&u, a.ID).Error)
	assert.Equal(t, "rabu", *u.PiketDay, "failed batch rolls back")

	n, err := svc.BatchUpdate(ctx, []PiketUpdate{
		{UserID: a.ID, NewPiketDay: strPtr("selasa")},
		{UserID: b.ID, NewPiketDay: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.Reset(ctx)
	require.NoError(t, err)
	require.NoError(t, db.First(&u, a.ID).Error)
	assert.Nil(t, u.PiketDay)
}

func TestStandaloneView(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	svc := NewPiketService(db)
	createUser(t, db, "me", withRFID("ME01"), withPiket("senin"))
	createUser(t, db, "mate", withPiket("senin"))
	createUser(t, db, "gone", withPiket("senin"), inactive())
	createUser(t, db, "other", withPiket("selasa"))

	view, err := svc.Standalone(ctx, "me01")
	require.NoError(t, err)
	assert.Equal(t, "me", view.User.Name)
	require.Len(t, view.Colleagues, 1)
	assert.Equal(t, "mate", view.Colleagues[0].Name)

	_, err = svc.Standalone(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultShuffleIsSharedSafely(t *testing.T) {
	svc := NewPiketService(nil)
	var wg sync.WaitGroup
	results := make([][]int, 16)
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			xs := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
			for i := 0; i < 200; i++ {
				svc.shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
			}
			results[g] = xs
		}(g)
	}
	wg.Wait()
	for _, xs := range results {
		sort.Ints(xs)
		assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, xs)
	}
}
