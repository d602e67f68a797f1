package gcal

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "github.com/TeeRawk/calendar-sync-app-sub002/internal/log"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/model"
	"github.com/TeeRawk/calendar-sync-app-sub002/internal/sync"
)

const listPageSize = 250

// Client drives one Google Calendar as a sync destination.
type Client struct {
	srv *calendar.Service
}

// NewClient builds a client from stored credentials. Extra options are
// appended after the authorized HTTP client, so tests can redirect the
// endpoint.
func NewClient(ctx context.Context, credentialsPath, tokenPath string, opts ...option.ClientOption) (*Client, error) {
	httpClient, err := NewHTTPClient(ctx, credentialsPath, tokenPath)
	if err != nil {
		return nil, err
	}
	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := calendar.NewService(ctx, all...)
	if err != nil {
		return nil, sync.ConfigError("create calendar service", err)
	}
	return &Client{srv: srv}, nil
}

// NewFromService wraps an existing calendar service. Tests point it at a
// local server.
func NewFromService(srv *calendar.Service) *Client {
	return &Client{srv: srv}
}

// Factory returns a sync.ClientFactory bound to the credential paths.
// Credential problems surface per run, classified, instead of at startup.
func Factory(credentialsPath, tokenPath string) sync.ClientFactory {
	return func(ctx context.Context) (sync.Client, error) {
		return NewClient(ctx, credentialsPath, tokenPath)
	}
}

// List returns the events starting inside the window, expanded to single
// instances. The API's timeMin/timeMax bound an event's end and start
// respectively and so admit events that merely overlap the window; those
// are filtered out here to honor the port contract. Cancelled ghosts and
// records without usable times are dropped.
func (c *Client) List(ctx context.Context, calendarID string, w model.Window) ([]model.Record, error) {
	var out []model.Record
	pageToken := ""

	for {
		call := c.srv.Events.List(calendarID).
			TimeMin(w.From.Format(time.RFC3339)).
			TimeMax(w.To.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			ShowDeleted(false).
			MaxResults(listPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		events, err := call.Do()
		if err != nil {
			return nil, classify("list", err)
		}

		for _, item := range events.Items {
			rec, ok := toRecord(item)
			if !ok || !w.Contains(rec.Start) {
				continue
			}
			out = append(out, rec)
		}

		if events.NextPageToken == "" {
			appLog.Debug("destination listed", "calendar", calendarID, "records", len(out))
			return out, nil
		}
		pageToken = events.NextPageToken
	}
}

// Insert writes a new event and returns its id.
func (c *Client) Insert(ctx context.Context, calendarID string, inst model.Instance, description string) (string, error) {
	created, err := c.srv.Events.Insert(calendarID, toEvent(inst, description)).Context(ctx).Do()
	if err != nil {
		return "", classify("create", err)
	}
	return created.Id, nil
}

// Update rewrites an existing event in place.
func (c *Client) Update(ctx context.Context, calendarID, eventID string, inst model.Instance, description string) error {
	_, err := c.srv.Events.Update(calendarID, eventID, toEvent(inst, description)).Context(ctx).Do()
	if err != nil {
		return classify("update", err)
	}
	return nil
}

// Delete removes an event. Already-gone events (404/410) count as success.
func (c *Client) Delete(ctx context.Context, calendarID, eventID string) error {
	err := c.srv.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == 404 || gerr.Code == 410) {
		return nil
	}
	return classify("delete", err)
}

// toEvent builds the write payload from an already-normalized instance.
// The description arrives with the marker embedded.
func toEvent(inst model.Instance, description string) *calendar.Event {
	ev := &calendar.Event{
		Summary:     inst.Summary,
		Description: description,
		Location:    inst.Location,
	}
	if inst.AllDay {
		ev.Start = &calendar.EventDateTime{Date: inst.Start.Format("2006-01-02")}
		ev.End = &calendar.EventDateTime{Date: inst.End.Format("2006-01-02")}
	} else {
		ev.Start = &calendar.EventDateTime{DateTime: inst.Start.Format(time.RFC3339)}
		ev.End = &calendar.EventDateTime{DateTime: inst.End.Format(time.RFC3339)}
	}
	if !inst.Busy {
		ev.Transparency = "transparent"
	}
	return ev
}

// toRecord converts a listed event. ok is false for items that cannot take
// part in reconciliation.
func toRecord(item *calendar.Event) (model.Record, bool) {
	if item == nil || item.Status == "cancelled" {
		return model.Record{}, false
	}
	if item.Start == nil || item.End == nil {
		return model.Record{}, false
	}

	rec := model.Record{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
	}

	if item.Start.DateTime != "" {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return model.Record{}, false
		}
		end, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			return model.Record{}, false
		}
		rec.Start, rec.End = start, end
		return rec, true
	}

	// All-day records carry dates only; anchor them at midnight UTC, the
	// same anchor the feed parser uses, so fingerprints line up.
	start, err := time.Parse("2006-01-02", item.Start.Date)
	if err != nil {
		return model.Record{}, false
	}
	end, err := time.Parse("2006-01-02", item.End.Date)
	if err != nil {
		return model.Record{}, false
	}
	rec.Start, rec.End = start, end
	rec.AllDay = true
	return rec, true
}

// classify maps provider errors onto sync kinds. Context cancellation
// passes through untouched so the executor can tell an aborted run from a
// failing event.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sync.TransientError(op, err)
	}

	// A refused token refresh means the grant is gone; only the user can
	// fix that.
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) || strings.Contains(err.Error(), "invalid_grant") {
		return sync.ReauthError(op, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401:
			return sync.ReauthError(op, err)
		case gerr.Code == 429:
			return sync.TransientError(op, err)
		case gerr.Code == 403 && hasReason(gerr, "rateLimitExceeded", "userRateLimitExceeded"):
			return sync.TransientError(op, err)
		case gerr.Code >= 500:
			return sync.TransientError(op, err)
		default:
			return sync.WriteError(op, err)
		}
	}

	// Plain transport failures (DNS, refused connections, resets) are
	// worth a retry.
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return sync.TransientError(op, err)
	}

	return sync.WriteError(op, err)
}

func hasReason(gerr *googleapi.Error, reasons ...string) bool {
	for _, item := range gerr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}
