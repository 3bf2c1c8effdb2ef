package services

import (
	"context"
	"testing"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkCommand(t *testing.T) {
	email, ok := ParseLinkCommand("  LINK  Andi@Lab.Test ")
	assert.True(t, ok)
	assert.Equal(t, "andi@lab.test", email)

	for _, text := range []string{"link", "halo", "link a b", "unlink andi@lab.test"} {
		_, ok := ParseLinkCommand(text)
		assert.False(t, ok, text)
	}
}

func TestLineLinker(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)
	andi := createUser(t, db, "andi")
	createUser(t, db, "bima")
	l := NewLineLinker(db)

	u, err := l.Link(ctx, "U1", "ANDI@lab.test")
	require.NoError(t, err)
	assert.Equal(t, andi.ID, u.ID)

	_, err = l.Link(ctx, "U1", "bima@lab.test")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = l.Link(ctx, "U2", "andi@lab.test")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = l.Link(ctx, "U3", "nobody@lab.test")
	assert.ErrorIs(t, err, ErrNotFound)

	var got models.User
	require.NoError(t, db.First(&got, andi.ID).Error)
	require.NotNil(t, got.LineUserID)
	assert.Equal(t, "U1", *got.LineUserID)

	ok, err := l.Unlink(ctx, "U1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Unlink(ctx, "U1")
	require.NoError(t, err)
	assert.False(t, ok)
}
