/*
Copyright 2023 - 2026 Dima Krasner

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

package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/LemmyNet/lemmy-federate/internal/cfg"
	"github.com/stretchr/testify/require"
)

type fakeBlockList struct{ blocked map[string]bool }

func (b fakeBlockList) Contains(domain string) bool { return b.blocked[domain] }

func testConfig() *cfg.Config {
	c := &cfg.Config{}
	c.FillDefaults()
	c.MaxResponseBodySize = 1024
	return c
}

func TestFetchObjectSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"` + "http://" + r.Host + `/post/1","type":"Page","attributedTo":"http://` + r.Host + `/user/1"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	obj, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/post/1", obj.ID)
}

func TestFetchObjectRejectsOriginMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"https://evil.example/post/1","type":"Page"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	_, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.ErrorIs(t, err, ErrOriginMismatch)
}

func TestFetchObjectRejectsTombstone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"http://` + r.Host + `/post/1","type":"Tombstone"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	_, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.ErrorIs(t, err, ErrGone)
}

func TestFetchRejectsBlockedDomain(t *testing.T) {
	f := New(testConfig(), fakeBlockList{blocked: map[string]bool{"blocked.example": true}}, nil, "", "")
	_, err := f.FetchObject(context.Background(), "https://blocked.example/post/1")
	require.ErrorIs(t, err, ErrBlockedDomain)
}

func TestFetchRejectsExhaustedBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"http://` + r.Host + `/post/1","type":"Page"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	ctx := WithBudget(context.Background(), 0)
	_, err := f.FetchObject(ctx, srv.URL+"/post/1")
	require.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestFetchDecrementsBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"http://` + r.Host + r.URL.Path + `","type":"Page"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	ctx := WithBudget(context.Background(), 1)

	_, err := f.FetchObject(ctx, srv.URL+"/post/1")
	require.NoError(t, err)

	_, err = f.FetchObject(ctx, srv.URL+"/post/2")
	require.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestFetchRejectsTooLargeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	c := testConfig()
	c.MaxResponseBodySize = 16
	f := New(c, nil, nil, "", "")

	_, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchCachesSuccessfulResponses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"id":"http://` + r.Host + `/post/1","type":"Page"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")

	_, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.NoError(t, err)

	_, err = f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.NoError(t, err)

	require.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestInvalidateDropsCachedObject(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"id":"http://` + r.Host + `/post/1","type":"Page"}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	id := srv.URL + "/post/1"

	_, err := f.FetchObject(context.Background(), id)
	require.NoError(t, err)

	f.Invalidate(id)

	_, err = f.FetchObject(context.Background(), id)
	require.NoError(t, err)

	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestFetchGoneOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	_, err := f.FetchObject(context.Background(), srv.URL+"/post/1")
	require.ErrorIs(t, err, ErrGone)
}

func TestFetchActorSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"http://` + r.Host + `/actor/1","type":"Person","inbox":"http://` + r.Host + `/actor/1/inbox","preferredUsername":"alice","publicKey":{"id":"x","owner":"y","publicKeyPem":"z"}}`))
	}))
	defer srv.Close()

	f := New(testConfig(), nil, nil, "", "")
	actor, err := f.FetchActor(context.Background(), srv.URL+"/actor/1")
	require.NoError(t, err)
	require.Equal(t, "alice", actor.PreferredUsername)
}
