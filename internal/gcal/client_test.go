package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

func testService(t *testing.T, handler http.Handler) *calendar.Service {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := calendar.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(ts.URL))
	require.NoError(t, err)
	return srv
}

func TestToEvent(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	start := time.Date(2025, 7, 10, 11, 0, 0, 0, madrid)

	t.Run("timed busy event", func(t *testing.T) {
		inst := model.Instance{
			UID:      "evt-1",
			Summary:  "Client call",
			Location: "Room 4",
			Busy:     true,
			Start:    start,
			End:      start.Add(time.Hour),
		}

		ev := toEvent(inst, "notes\n\nOriginal UID: evt-1")
		assert.Equal(t, "Client call", ev.Summary)
		assert.Equal(t, "notes\n\nOriginal UID: evt-1", ev.Description)
		assert.Equal(t, "Room 4", ev.Location)
		assert.Equal(t, "2025-07-10T11:00:00+02:00", ev.Start.DateTime)
		assert.Equal(t, "2025-07-10T12:00:00+02:00", ev.End.DateTime)
		assert.Empty(t, ev.Start.Date)
		assert.Empty(t, ev.Transparency)
	})

	t.Run("free events are transparent", func(t *testing.T) {
		inst := model.Instance{UID: "evt-1", Summary: "Focus", Busy: false, Start: start, End: start.Add(time.Hour)}
		ev := toEvent(inst, "")
		assert.Equal(t, "transparent", ev.Transparency)
	})

	t.Run("all-day events carry dates", func(t *testing.T) {
		day := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
		inst := model.Instance{UID: "evt-1", Summary: "Offsite", AllDay: true, Busy: true, Start: day, End: day.AddDate(0, 0, 1)}

		ev := toEvent(inst, "")
		assert.Equal(t, "2025-03-05", ev.Start.Date)
		assert.Equal(t, "2025-03-06", ev.End.Date)
		assert.Empty(t, ev.Start.DateTime)
	})
}

func TestToRecord(t *testing.T) {
	t.Run("timed event", func(t *testing.T) {
		rec, ok := toRecord(&calendar.Event{
			Id:          "g-1",
			Summary:     "Client call",
			Description: "notes\n\nOriginal UID: evt-1",
			Start:       &calendar.EventDateTime{DateTime: "2025-07-10T11:00:00+02:00"},
			End:         &calendar.EventDateTime{DateTime: "2025-07-10T12:00:00+02:00"},
		})
		require.True(t, ok)

		want := model.Record{
			ID:          "g-1",
			Summary:     "Client call",
			Description: "notes\n\nOriginal UID: evt-1",
			Start:       time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC),
			End:         time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC),
		}
		if diff := cmp.Diff(want, rec); diff != "" {
			t.Errorf("toRecord() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("all-day event anchors at midnight UTC", func(t *testing.T) {
		rec, ok := toRecord(&calendar.Event{
			Id:    "g-2",
			Start: &calendar.EventDateTime{Date: "2025-03-05"},
			End:   &calendar.EventDateTime{Date: "2025-03-06"},
		})
		require.True(t, ok)
		assert.True(t, rec.AllDay)
		assert.True(t, rec.Start.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
		assert.True(t, rec.End.Equal(time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("unusable items are dropped", func(t *testing.T) {
		tests := []struct {
			name string
			item *calendar.Event
		}{
			{"nil item", nil},
			{"cancelled ghost", &calendar.Event{Id: "g-3", Status: "cancelled"}},
			{"missing start", &calendar.Event{Id: "g-4", End: &calendar.EventDateTime{Date: "2025-03-06"}}},
			{"missing end", &calendar.Event{Id: "g-5", Start: &calendar.EventDateTime{Date: "2025-03-05"}}},
			{"garbled datetime", &calendar.Event{
				Id:    "g-6",
				Start: &calendar.EventDateTime{DateTime: "not a timestamp"},
				End:   &calendar.EventDateTime{DateTime: "2025-03-05T10:00:00Z"},
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, ok := toRecord(tt.item)
				assert.False(t, ok)
			})
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want sync.Kind
	}{
		{"401 means reauth", &googleapi.Error{Code: 401}, sync.KindReauthRequired},
		{"refused token refresh means reauth", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, sync.KindReauthRequired},
		{"invalid_grant in message means reauth", errors.New(`oauth2: "invalid_grant" token expired`), sync.KindReauthRequired},
		{"429 is transient", &googleapi.Error{Code: 429}, sync.KindTransient},
		{"403 rate limit is transient", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}},
		}, sync.KindTransient},
		{"403 user rate limit is transient", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
		}, sync.KindTransient},
		{"plain 403 is a write failure", &googleapi.Error{
			Code:   403,
			Errors: []googleapi.ErrorItem{{Reason: "forbidden"}},
		}, sync.KindWriteFailed},
		{"500 is transient", &googleapi.Error{Code: 500}, sync.KindTransient},
		{"503 is transient", &googleapi.Error{Code: 503}, sync.KindTransient},
		{"400 is a write failure", &googleapi.Error{Code: 400}, sync.KindWriteFailed},
		{"404 is a write failure", &googleapi.Error{Code: 404}, sync.KindWriteFailed},
		{"transport failure is transient", &url.Error{Op: "Get", URL: "https://example.com", Err: errors.New("connection refused")}, sync.KindTransient},
		{"deadline exceeded is transient", context.DeadlineExceeded, sync.KindTransient},
		{"anything else is a write failure", errors.New("unexpected payload"), sync.KindWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("create", tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.want, sync.KindOf(got))
		})
	}

	t.Run("wrapped errors are still classified", func(t *testing.T) {
		err := fmt.Errorf("call failed: %w", &googleapi.Error{Code: 500})
		assert.Equal(t, sync.KindTransient, sync.KindOf(classify("update", err)))
	})

	t.Run("cancellation passes through unclassified", func(t *testing.T) {
		got := classify("create", context.Canceled)
		assert.ErrorIs(t, got, context.Canceled)
		assert.Equal(t, sync.Kind(""), sync.KindOf(got))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify("create", nil))
	})
}

func TestList_PagesThroughResults(t *testing.T) {
	pages := map[string]*calendar.Events{
		"": {
			Items: []*calendar.Event{
				{
					Id:          "g-1",
					Summary:     "First",
					Description: "Original UID: evt-1",
					Start:       &calendar.EventDateTime{DateTime: "2025-03-05T10:00:00Z"},
					End:         &calendar.EventDateTime{DateTime: "2025-03-05T11:00:00Z"},
				},
			},
			NextPageToken: "page-2",
		},
		"page-2": {
			Items: []*calendar.Event{
				{
					Id:      "g-2",
					Summary: "Second",
					Start:   &calendar.EventDateTime{DateTime: "2025-03-06T10:00:00Z"},
					End:     &calendar.EventDateTime{DateTime: "2025-03-06T11:00:00Z"},
				},
				{Id: "g-ghost", Status: "cancelled"},
			},
		},
	}

	srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("timeMin"))
		assert.NotEmpty(t, r.URL.Query().Get("timeMax"))
		assert.Equal(t, "true", r.URL.Query().Get("singleEvents"))

		page, ok := pages[r.URL.Query().Get("pageToken")]
		if !ok {
			http.Error(w, "unknown page", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))

	client := NewFromService(srv)
	w := model.Window{
		From: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
	}

	recs, err := client.List(context.Background(), "cal-1", w)
	require.NoError(t, err)

	require.Len(t, recs, 2, "both pages minus the cancelled ghost")
	assert.Equal(t, "g-1", recs[0].ID)
	assert.Equal(t, "g-2", recs[1].ID)
}

func TestList_DropsRecordsStartingOutsideWindow(t *testing.T) {
	// The API's list bounds admit events that merely overlap the window,
	// like an occurrence still running at timeMin. Only starts inside the
	// window may take part in reconciliation.
	srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&calendar.Events{
			Items: []*calendar.Event{
				{
					Id:          "g-straddler",
					Summary:     "Night handover",
					Description: "Original UID: evt-late",
					Start:       &calendar.EventDateTime{DateTime: "2025-03-02T23:00:00Z"},
					End:         &calendar.EventDateTime{DateTime: "2025-03-03T01:00:00Z"},
				},
				{
					Id:    "g-inside",
					Start: &calendar.EventDateTime{DateTime: "2025-03-05T10:00:00Z"},
					End:   &calendar.EventDateTime{DateTime: "2025-03-05T11:00:00Z"},
				},
			},
		})
	}))

	client := NewFromService(srv)
	recs, err := client.List(context.Background(), "cal-1", model.Window{
		From: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, recs, 1)
	assert.Equal(t, "g-inside", recs[0].ID)
}

func TestList_ClassifiesFailures(t *testing.T) {
	srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`, http.StatusUnauthorized)
	}))

	client := NewFromService(srv)
	_, err := client.List(context.Background(), "cal-1", model.Window{
		From: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
	})

	require.Error(t, err)
	assert.True(t, sync.IsKind(err, sync.KindReauthRequired))
}

func TestDelete_TreatsAlreadyGoneAsSuccess(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		t.Run(fmt.Sprintf("status %d", code), func(t *testing.T) {
			srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))

			client := NewFromService(srv)
			assert.NoError(t, client.Delete(context.Background(), "cal-1", "evt-gone"))
		})
	}
}

func TestDelete_OtherFailuresAreClassified(t *testing.T) {
	srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":503,"message":"Backend Error"}}`, http.StatusServiceUnavailable)
	}))

	client := NewFromService(srv)
	err := client.Delete(context.Background(), "cal-1", "evt-1")
	require.Error(t, err)
	assert.True(t, sync.IsKind(err, sync.KindTransient))
}

func TestInsert_ReturnsDestinationID(t *testing.T) {
	srv := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var ev calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		assert.Equal(t, "Planning", ev.Summary)

		ev.Id = "g-new"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&ev)
	}))

	client := NewFromService(srv)
	start := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	inst := model.Instance{UID: "evt-1", Summary: "Planning", Busy: true, Start: start, End: start.Add(time.Hour)}

	id, err := client.Insert(context.Background(), "cal-1", inst, "Original UID: evt-1")
	require.NoError(t, err)
	assert.Equal(t, "g-new", id)
}
