package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channelmirror/internal/domain"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(Config{
		BaseURL:           baseURL,
		Token:             "test-token",
		Timeout:           5 * time.Second,
		FloodWaitMargin:   10 * time.Millisecond,
		RequestsPerMinute: 60000,
	}, logger)
}

func TestConnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]bool{"authorized": true})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	require.NoError(t, c.Connect(context.Background()))
}

func TestConnect_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"authorized": false})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestResolveEntity_ByHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities/technews", r.URL.Path)
		json.NewEncoder(w).Encode(entityResponse{
			ID:        100200,
			Handle:    "technews",
			Title:     "Tech News",
			Type:      "channel",
			Broadcast: true,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	entity, err := c.ResolveEntity(context.Background(), "technews")
	require.NoError(t, err)
	assert.Equal(t, int64(100200), entity.ID)
	assert.True(t, entity.Broadcast)
}

func TestResolveEntity_NumericIDUsesTypedRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities/by-id/100200", r.URL.Path)
		json.NewEncoder(w).Encode(entityResponse{
			ID:        100200,
			Title:     "Tech News",
			Type:      "channel",
			Broadcast: true,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	entity, err := c.ResolveEntity(context.Background(), "100200")
	require.NoError(t, err)
	assert.Equal(t, int64(100200), entity.ID)
}

func TestResolveEntity_RejectsNonChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(entityResponse{ID: 42, Type: "user"})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	entity, err := c.ResolveEntity(context.Background(), "someuser")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	assert.Nil(t, entity)
}

func TestResolveEntity_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.ResolveEntity(context.Background(), "nosuch")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func TestFetchRecent_PassesWatermark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/100200/messages", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "500", r.URL.Query().Get("min_id"))
		json.NewEncoder(w).Encode(messagesResponse{Messages: []wireMessage{
			{ID: 501, Type: "text", Views: 10},
			{ID: 502, Type: "photo", Views: 20, HasLinks: true},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	msgs, err := c.FetchRecent(context.Background(), &domain.Entity{ID: 100200}, 100, 500)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(501), msgs[0].TelegramMessageID)
	assert.Equal(t, domain.ContentPhoto, msgs[1].ContentType)
	assert.True(t, msgs[1].HasLinks)
}

func TestFetchRecent_FloodWaitResumesSameRequest(t *testing.T) {
	var queries []string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		queries = append(queries, r.URL.RawQuery)
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(floodWaitResponse{Error: "flood_wait", RetryAfter: 1})
			return
		}
		json.NewEncoder(w).Encode(messagesResponse{Messages: []wireMessage{{ID: 501}}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.floodMargin = time.Millisecond

	start := time.Now()
	msgs, err := c.FetchRecent(context.Background(), &domain.Entity{ID: 100200}, 10, 500)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, 2, calls)
	assert.Equal(t, queries[0], queries[1], "retry must carry the identical cursor")
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "must sit out the mandated wait")
}

func TestFetchRecent_FloodWaitWithoutRetryAfterFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.FetchRecent(context.Background(), &domain.Entity{ID: 100200}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_after")
}

func TestStreamSince_PagesForwardWithoutGapsOrDuplicates(t *testing.T) {
	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	pages := map[string][]wireMessage{
		"": {{ID: 1}, {ID: 2}}, // first page, selected by offset_date
		"2": {{ID: 3}, {ID: 4}},
		"4": {{ID: 5}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "asc", r.URL.Query().Get("order"))
		offsetID := r.URL.Query().Get("offset_id")
		if offsetID == "" {
			assert.Equal(t, since.Format(time.RFC3339), r.URL.Query().Get("offset_date"))
		}
		json.NewEncoder(w).Encode(messagesResponse{Messages: pages[offsetID]})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	batches, errc := c.StreamSince(context.Background(), &domain.Entity{ID: 100200}, since, 2)

	var ids []int64
	for batch := range batches {
		for _, m := range batch {
			ids = append(ids, m.TelegramMessageID)
		}
	}
	require.NoError(t, <-errc)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
}

func TestStreamSince_MidWalkErrorPropagates(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(messagesResponse{Messages: []wireMessage{{ID: 1}, {ID: 2}}})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	batches, errc := c.StreamSince(context.Background(), &domain.Entity{ID: 100200}, time.Now().AddDate(0, 0, -7), 2)

	received := 0
	for batch := range batches {
		received += len(batch)
	}
	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
	assert.Equal(t, 2, received)
}

func TestStreamSince_FloodWaitMidWalkResumesCursor(t *testing.T) {
	var offsets []string
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		offsets = append(offsets, r.URL.Query().Get("offset_id"))
		switch calls {
		case 1:
			json.NewEncoder(w).Encode(messagesResponse{Messages: []wireMessage{{ID: 1}, {ID: 2}}})
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(floodWaitResponse{Error: "flood_wait", RetryAfter: 1})
		default:
			json.NewEncoder(w).Encode(messagesResponse{Messages: []wireMessage{{ID: 3}}})
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	c.floodMargin = time.Millisecond
	batches, errc := c.StreamSince(context.Background(), &domain.Entity{ID: 100200}, time.Now().AddDate(0, 0, -7), 2)

	var ids []int64
	for batch := range batches {
		for _, m := range batch {
			ids = append(ids, m.TelegramMessageID)
		}
	}
	require.NoError(t, <-errc)

	assert.Equal(t, []int64{1, 2, 3}, ids, "no message lost or duplicated across the wait")
	require.Len(t, offsets, 3)
	assert.Equal(t, offsets[1], offsets[2], "resumed request repeats the same cursor")
}

func TestParseMessages_Defaults(t *testing.T) {
	c := testClient(t, "http://unused")
	postedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339)
	bad := "not-a-time"

	msgs := c.parseMessages([]wireMessage{
		{ID: 1, PostedAt: &postedAt},
		{ID: 2, Type: "video", PostedAt: &bad},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ContentText, msgs[0].ContentType, "missing type defaults to text")
	require.NotNil(t, msgs[0].PostedAt)
	assert.Nil(t, msgs[1].PostedAt, "unparseable timestamp is dropped, message kept")
}

func TestPace_RespectsContextCancel(t *testing.T) {
	c := testClient(t, "http://unused")
	c.minDelay = time.Hour
	c.maxDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.pace(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetJSON_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(http.StatusBadGateway))
}

func TestChannelInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fmt.Sprintf("/channels/%d/full", 100200), r.URL.Path)
		json.NewEncoder(w).Encode(fullChannelResponse{
			ID:                100200,
			Handle:            "technews",
			Title:             "Tech News",
			About:             "daily links",
			Verified:          true,
			ParticipantsCount: 4321,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	info, err := c.ChannelInfo(context.Background(), &domain.Entity{ID: 100200})
	require.NoError(t, err)
	assert.Equal(t, int64(4321), info.SubscribersCount)
	assert.True(t, info.IsVerified)
}
