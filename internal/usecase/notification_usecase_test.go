package usecase_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifications_ListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := placeCOD(t, f, user(aliceID))
	setStatus(t, f, order.ID, "PROCESSING")
	setStatus(t, f, order.ID, "SHIPPED")
	placeCOD(t, f, user(bobID))

	out, err := f.notes.List(ctx, aliceID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Total)
	assert.Equal(t, int64(2), out.Unread)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Order Shipped", out.Items[0].Title, "newest first")

	require.NoError(t, f.notes.MarkRead(ctx, aliceID, out.Items[0].ID))
	require.NoError(t, f.notes.MarkRead(ctx, aliceID, out.Items[0].ID), "marking twice is fine")

	out, err = f.notes.List(ctx, aliceID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Unread)
	assert.True(t, out.Items[0].IsRead)

	page2, err := f.notes.List(ctx, aliceID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "Order Placed", page2.Items[0].Title)
}

func TestNotifications_OtherUsersAreHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	placeCOD(t, f, user(aliceID))
	aliceNote := f.db.notificationsFor(aliceID)[0]

	err := f.notes.MarkRead(ctx, bobID, aliceNote.ID)
	assertHTTPStatus(t, err, http.StatusNotFound)
	assert.False(t, f.db.notificationsFor(aliceID)[0].IsRead)

	out, err := f.notes.List(ctx, bobID, 1, 20)
	require.NoError(t, err)
	assert.NotNil(t, out.Items)
	assert.Empty(t, out.Items)
}

func TestNotifications_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.notes.List(ctx, 0, 1, 20)
	assertHTTPStatus(t, err, http.StatusUnauthorized)
	_, err = f.notes.List(ctx, aliceID, 0, 20)
	assertHTTPStatus(t, err, http.StatusBadRequest)
	_, err = f.notes.List(ctx, aliceID, 1, 101)
	assertHTTPStatus(t, err, http.StatusBadRequest)
	assertHTTPStatus(t, f.notes.MarkRead(ctx, aliceID, 0), http.StatusBadRequest)
}
