package failmark

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/filebridge/vfslock/vfsfs/vfsfstest"
)

func TestMarkIsReleaseRoundTrip(t *testing.T) {
	mgr := vfsfstest.New()
	s := New(mgr)
	uri := "/data/in/a.csv"

	assert.False(t, s.IsFail(context.Background(), uri))

	s.MarkFail(context.Background(), uri)
	assert.True(t, s.IsFail(context.Background(), uri))

	s.ReleaseFail(context.Background(), uri)
	assert.False(t, s.IsFail(context.Background(), uri))
}

func TestMarkFailOverwrites(t *testing.T) {
	mgr := vfsfstest.New()
	s := New(mgr)
	uri := "/data/in/a.csv"

	s.MarkFail(context.Background(), uri)
	s.MarkFail(context.Background(), uri)
	assert.True(t, s.IsFail(context.Background(), uri))
}

func TestReleaseFailIsIdempotent(t *testing.T) {
	mgr := vfsfstest.New()
	s := New(mgr)
	s.ReleaseFail(context.Background(), "/data/in/missing.csv")
}

func TestIsFailReappendsQueryTail(t *testing.T) {
	mgr := vfsfstest.New()
	s := New(mgr)
	uri := "/data/in/a.csv?token=abc"

	// MarkFail writes to the canonical path; IsFail looks for the
	// canonical path with the query tail re-appended. Every vfsfs.Manager
	// (real or fake) strips that re-appended tail in Resolve before it
	// reaches the backend, since a query string is never part of a
	// backend's file identity — so both paths land on the same sidecar
	// and the round trip still holds even though the URI carries a query
	// string, per spec.md §8 scenario 6.
	s.MarkFail(context.Background(), uri)

	handle, err := mgr.Resolve(context.Background(), "/data/in/a.csv.fail?token=abc")
	assert.NoError(t, err)
	exists, err := handle.Exists(context.Background())
	assert.NoError(t, err)
	assert.True(t, exists, "Resolve strips the query tail so this is the same sidecar MarkFail wrote")
	assert.True(t, s.IsFail(context.Background(), uri))

	s.ReleaseFail(context.Background(), uri)
	assert.False(t, s.IsFail(context.Background(), uri))
}
