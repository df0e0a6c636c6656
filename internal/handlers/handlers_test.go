/*
Copyright 2025, 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package handlers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/LemmyNet/lemmy-federate/internal/activitylog"
	"github.com/LemmyNet/lemmy-federate/internal/ap"
	"github.com/LemmyNet/lemmy-federate/internal/fanout"
	"github.com/LemmyNet/lemmy-federate/internal/memsink"
	"github.com/LemmyNet/lemmy-federate/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeActorStore struct {
	mu     sync.Mutex
	actors map[string]*store.Actor
}

func newFakeActorStore() *fakeActorStore {
	return &fakeActorStore{actors: make(map[string]*store.Actor)}
}

func (f *fakeActorStore) GetActor(ctx context.Context, id string) (*store.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeActorStore) PutActor(ctx context.Context, a *store.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors[a.ID] = a
	return nil
}

func (f *fakeActorStore) DeleteActor(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.actors, id)
	return nil
}

type followerRecord struct {
	inbox string
	state store.FollowState
}

type fakeFollowerStore struct {
	mu      sync.Mutex
	members map[string]map[string]followerRecord // community -> follower -> record
}

func newFakeFollowerStore() *fakeFollowerStore {
	return &fakeFollowerStore{members: make(map[string]map[string]followerRecord)}
}

func (f *fakeFollowerStore) Followers(ctx context.Context, community string, afterID int64, limit int) ([]int64, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []int64
	var inboxes []string
	var i int64
	for _, rec := range f.members[community] {
		i++
		if i <= afterID || rec.state != store.FollowAccepted {
			continue
		}
		ids = append(ids, i)
		inboxes = append(inboxes, rec.inbox)
		if len(ids) == limit {
			break
		}
	}
	return ids, inboxes, nil
}

func (f *fakeFollowerStore) AddFollower(ctx context.Context, community, follower string, state store.FollowState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[community] == nil {
		f.members[community] = make(map[string]followerRecord)
	}
	f.members[community][follower] = followerRecord{inbox: follower + "/inbox", state: state}
	return nil
}

func (f *fakeFollowerStore) RemoveFollower(ctx context.Context, community, follower string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[community], follower)
	return nil
}

func (f *fakeFollowerStore) IsFollower(ctx context.Context, community, follower string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[community][follower]
	return ok, nil
}

type fakeEntries struct {
	mu       sync.Mutex
	appended []store.OutboxEntry
	nextID   int64
}

func (f *fakeEntries) Append(ctx context.Context, actorID string, activity []byte, targetDomains []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.appended = append(f.appended, store.OutboxEntry{ID: f.nextID, ActorID: actorID, Activity: activity, TargetDomains: targetDomains})
	return f.nextID, nil
}

func (f *fakeEntries) ReadFrom(ctx context.Context, afterID int64, limit int) ([]store.OutboxEntry, error) {
	return nil, nil
}

func (f *fakeEntries) LatestID(ctx context.Context) (int64, error) { return f.nextID, nil }

func (f *fakeEntries) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

type fakeReceived struct{}

func (fakeReceived) MarkReceived(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (fakeReceived) Prune(ctx context.Context) error { return nil }

// testDeps bundles a fresh Deps with every in-memory collaborator, wired
// the way cmd/federationd wires the real ones.
type testDeps struct {
	*Deps
	actors    *fakeActorStore
	followers *fakeFollowerStore
	entries   *fakeEntries
	sink      *memsink.Sink
}

func newTestDeps(domain string) *testDeps {
	actors := newFakeActorStore()
	followers := newFakeFollowerStore()
	entries := &fakeEntries{}
	log := activitylog.New(entries, fakeReceived{}, time.Hour)
	sink := memsink.New()
	fo := fanout.New(domain, followers, log)

	d := &Deps{
		Domain:      domain,
		Actors:      actors,
		Followers:   followers,
		Log:         log,
		Content:     sink,
		Votes:       sink,
		Moderation:  sink,
		Reports:     sink,
		Collections: sink,
		Communities: sink,
		Fanout:      fo,
	}

	return &testDeps{Deps: d, actors: actors, followers: followers, entries: entries, sink: sink}
}

func TestFollowHandlerVerifyRejectsRemoteTarget(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewFollowHandler(td.Deps)

	activity := &ap.Activity{ID: "https://b.example/follow/1", Actor: "https://b.example/actor/1", Object: "https://other.example/c/test"}
	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFollowHandlerReceiveAddsFollowerAndSendsAccept(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewFollowHandler(td.Deps)

	community := "https://local.example/c/test"
	require.NoError(t, td.actors.PutActor(context.Background(), &store.Actor{ID: community, Local: true}))

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/follow/1", Actor: sender.ID, Object: community}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	ok, err := td.followers.IsFollower(context.Background(), community, sender.ID)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 1, td.entries.count())
	require.Equal(t, []string{"b.example"}, td.entries.appended[0].TargetDomains)
}

func TestFollowHandlerReceiveRequiresApprovalForPrivateCommunity(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewFollowHandler(td.Deps)

	community := "https://local.example/c/private"
	require.NoError(t, td.actors.PutActor(context.Background(), &store.Actor{ID: community, Local: true}))
	td.sink.SetVisibility(community, fanout.Private)

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/follow/1", Actor: sender.ID, Object: community}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	// recorded as a follower, but not yet Accepted
	ok, err := td.followers.IsFollower(context.Background(), community, sender.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ids, _, err := td.followers.Followers(context.Background(), community, 0, 10)
	require.NoError(t, err)
	require.Empty(t, ids, "an ApprovalRequired follower must not appear in the announce audience")

	// no Accept was sent
	require.Equal(t, 0, td.entries.count())
}

func TestFollowHandlerReceiveAcceptsForPublicCommunity(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewFollowHandler(td.Deps)

	community := "https://local.example/c/public"
	require.NoError(t, td.actors.PutActor(context.Background(), &store.Actor{ID: community, Local: true}))
	td.sink.SetVisibility(community, fanout.Public)

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/follow/1", Actor: sender.ID, Object: community}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	ids, _, err := td.followers.Followers(context.Background(), community, 0, 10)
	require.NoError(t, err)
	require.Len(t, ids, 1, "an Accepted follower must appear in the announce audience")

	require.Equal(t, 1, td.entries.count())
}

func TestAcceptHandlerVerifyRequiresFollowFromUs(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewAcceptHandler(td.Deps)

	follow := &ap.Activity{ID: "https://local.example/follow/1", Type: ap.Follow, Actor: "https://other.example/actor/9"}
	activity := &ap.Activity{ID: "https://b.example/accept/1", Object: follow}

	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptHandlerReceiveRecordsFollow(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewAcceptHandler(td.Deps)

	follow := &ap.Activity{ID: "https://local.example/follow/1", Type: ap.Follow, Actor: "https://local.example/actor/1", Object: "https://b.example/c/test"}
	activity := &ap.Activity{ID: "https://b.example/accept/1", Object: follow}
	sender := &ap.Actor{ID: "https://b.example/c/test"}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	ok, err := td.followers.IsFollower(context.Background(), "https://b.example/c/test", "https://local.example/actor/1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUndoHandlerVerifyRejectsUnsupportedNestedType(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewUndoHandler(td.Deps)

	nested := &ap.Activity{ID: "x", Type: ap.Create, Actor: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "y", Actor: "https://b.example/actor/1", Object: nested}

	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ap.ErrUnsupportedActivity)
}

func TestUndoHandlerLikeRemovesVoteAndIsIdempotentNoOp(t *testing.T) {
	td := newTestDeps("local.example")
	likeH := NewLikeHandler(td.Deps)
	undoH := NewUndoHandler(td.Deps)

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	like := &ap.Activity{ID: "https://b.example/like/1", Type: ap.Like, Actor: sender.ID, Object: "https://local.example/post/1"}
	require.NoError(t, likeH.Verify(context.Background(), like, sender))
	require.NoError(t, likeH.Receive(context.Background(), like, sender))

	undo := &ap.Activity{ID: "https://b.example/undo/1", Actor: sender.ID, Object: like}
	require.NoError(t, undoH.Verify(context.Background(), undo, sender))
	require.NoError(t, undoH.Receive(context.Background(), undo, sender))

	// undoing again is a no-op, not an error, since RemoveVote on an
	// already-absent vote is idempotent in memsink.
	require.NoError(t, undoH.Receive(context.Background(), undo, sender))
}

func TestCreateHandlerVerifyRequiresMatchingDomains(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewCreateHandler(td.Deps)

	obj := &ap.Object{ID: "https://b.example/post/1", Type: ap.Post, AttributedTo: "https://other.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/create/1", Actor: "https://b.example/actor/1", Object: obj}

	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ap.ErrDomainMismatch)
}

func TestCreateHandlerReceiveUpsertsAndAnnounces(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewCreateHandler(td.Deps)

	community := "https://local.example/c/test"
	td.sink.SetVisibility(community, fanout.Public)
	require.NoError(t, td.followers.AddFollower(context.Background(), community, "https://b.example/actor/9", store.FollowAccepted))

	obj := &ap.Object{ID: "https://b.example/post/1", Type: ap.Post, AttributedTo: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/create/1", Actor: "https://b.example/actor/1", Object: obj}
	activity.To.Add(community)

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	stored, err := td.sink.IsDeletedOrRemoved(context.Background(), obj.ID)
	require.NoError(t, err)
	require.False(t, stored)

	require.Equal(t, 1, td.entries.count(), "create should have fanned out through the community")
}

func TestUpdateHandlerSkipsDeletedObject(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewUpdateHandler(td.Deps)

	obj := &ap.Object{ID: "https://b.example/post/1", Type: ap.Post, AttributedTo: "https://b.example/actor/1"}
	require.NoError(t, td.sink.MarkDeleted(context.Background(), obj.ID))

	activity := &ap.Activity{ID: "https://b.example/update/1", Actor: "https://b.example/actor/1", Object: obj}
	sender := &ap.Actor{ID: "https://b.example/actor/1"}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))
	require.Equal(t, 0, td.entries.count())
}

func TestDeleteHandlerIsIdempotent(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewDeleteHandler(td.Deps)

	objectID := "https://b.example/post/1"
	activity := &ap.Activity{ID: "https://b.example/delete/1", Actor: "https://b.example/actor/1", Object: objectID}
	sender := &ap.Actor{ID: "https://b.example/actor/1"}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	deleted, err := td.sink.IsDeletedOrRemoved(context.Background(), objectID)
	require.NoError(t, err)
	require.True(t, deleted)

	// a second delivery of the same Delete does nothing further
	require.NoError(t, h.Receive(context.Background(), activity, sender))
}

func TestLikeHandlerVerifyRejectsMissingTarget(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewLikeHandler(td.Deps)

	activity := &ap.Activity{ID: "x", Actor: "https://b.example/actor/1"}
	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ap.ErrInvalidActivity)
}

func TestDislikeHandlerRecordsNegativeScore(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewDislikeHandler(td.Deps)

	sender := &ap.Actor{ID: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/dislike/1", Actor: sender.ID, Object: "https://local.example/post/1"}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))
}

func TestBlockHandlerBansAndAnnounces(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewBlockHandler(td.Deps)

	community := "https://local.example/c/test"
	td.sink.SetVisibility(community, fanout.Public)
	require.NoError(t, td.followers.AddFollower(context.Background(), community, "https://b.example/actor/9", store.FollowAccepted))

	activity := &ap.Activity{ID: community + "/block/1", Actor: community, Object: "https://b.example/actor/1"}
	sender := &ap.Actor{ID: community}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))

	require.Equal(t, 1, td.entries.count())
}

func TestLockHandlerSetsLocked(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewLockHandler(td.Deps)

	community := "https://local.example/c/test"
	activity := &ap.Activity{ID: community + "/lock/1", Actor: community, Object: "https://local.example/post/1"}
	sender := &ap.Actor{ID: community}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))
}

func TestReportHandlerRequiresPublicAudience(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewReportHandler(td.Deps)

	activity := &ap.Activity{ID: "x", Actor: "https://b.example/actor/1", Object: "https://local.example/post/1"}
	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"})
	require.ErrorIs(t, err, ErrPrivateAudience)

	activity.To.Add(ap.Public)
	require.NoError(t, h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1"}))
}

func TestReportHandlerDoesNotFanOut(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewReportHandler(td.Deps)

	activity := &ap.Activity{ID: "x", Actor: "https://b.example/actor/1", Object: "https://local.example/post/1", Summary: "spam"}
	activity.To.Add(ap.Public)
	sender := &ap.Actor{ID: "https://b.example/actor/1"}

	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))
	require.Equal(t, 0, td.entries.count(), "reports are moderator-only, never fanned out")
}

func TestCollectionHandlerAddAndRemove(t *testing.T) {
	td := newTestDeps("local.example")
	addH := NewCollectionAddHandler(td.Deps)
	removeH := NewCollectionRemoveHandler(td.Deps)

	community := "https://local.example/c/test"
	activity := &ap.Activity{
		ID:     community + "/add/1",
		Actor:  community,
		Object: "https://local.example/post/1",
		Target: community + "/featured",
	}
	sender := &ap.Actor{ID: community}

	require.NoError(t, addH.Verify(context.Background(), activity, sender))
	require.NoError(t, addH.Receive(context.Background(), activity, sender))

	require.NoError(t, removeH.Verify(context.Background(), activity, sender))
	require.NoError(t, removeH.Receive(context.Background(), activity, sender))
}

func TestCollectionHandlerVerifyRequiresTarget(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewCollectionAddHandler(td.Deps)

	community := "https://local.example/c/test"
	activity := &ap.Activity{ID: community + "/add/1", Actor: community, Object: "https://local.example/post/1"}
	err := h.Verify(context.Background(), activity, &ap.Actor{ID: community})
	require.ErrorIs(t, err, ap.ErrInvalidActivity)
}

func TestAnnounceHandlerRequiresCommunitySender(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewAnnounceHandler(td.Deps)

	inner := &ap.Activity{ID: "x", Type: ap.Like, Actor: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "y", Actor: "https://b.example/actor/1", Object: inner}

	err := h.Verify(context.Background(), activity, &ap.Actor{ID: "https://b.example/actor/1", Type: ap.Person})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestAnnounceHandlerDispatchesInnerActivity(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewAnnounceHandler(td.Deps)

	var dispatched *ap.Activity
	td.Deps.Dispatch = func(ctx context.Context, inner *ap.Activity) error {
		dispatched = inner
		return nil
	}

	inner := &ap.Activity{ID: "https://b.example/like/1", Type: ap.Like, Actor: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "https://b.example/c/test/announce/1", Actor: "https://b.example/c/test", Object: inner}

	sender := &ap.Actor{ID: "https://b.example/c/test", Type: ap.Community}
	require.NoError(t, h.Verify(context.Background(), activity, sender))
	require.NoError(t, h.Receive(context.Background(), activity, sender))
	require.Equal(t, inner, dispatched)
}

func TestAnnounceHandlerReceiveFailsWithoutDispatchWired(t *testing.T) {
	td := newTestDeps("local.example")
	h := NewAnnounceHandler(td.Deps)

	inner := &ap.Activity{ID: "x", Type: ap.Like, Actor: "https://b.example/actor/1"}
	activity := &ap.Activity{ID: "y", Actor: "https://b.example/c/test", Object: inner}
	sender := &ap.Actor{ID: "https://b.example/c/test", Type: ap.Community}

	require.Error(t, h.Receive(context.Background(), activity, sender))
}
