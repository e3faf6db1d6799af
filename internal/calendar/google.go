package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleProvider implements Provider on the Google Calendar v3 API.
type GoogleProvider struct {
	opts   []option.ClientOption
	logger *zap.Logger
}

// NewGoogleProvider creates a provider. opts are appended to every client,
// e.g. option.WithEndpoint in tests.
func NewGoogleProvider(logger *zap.Logger, opts ...option.ClientOption) *GoogleProvider {
	return &GoogleProvider{opts: opts, logger: logger}
}

func (p *GoogleProvider) service(ctx context.Context, token string) (*gcal.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.opts...)

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	return svc, nil
}

func (p *GoogleProvider) ListEvents(ctx context.Context, ownerToken, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	svc, err := p.service(ctx, ownerToken)
	if err != nil {
		return nil, err
	}

	var events []Event
	pageToken := ""
	for {
		call := svc.Events.List(calendarID).
			TimeMin(timeMin.Format(time.RFC3339)).
			TimeMax(timeMax.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}

		for _, item := range res.Items {
			if item.Status == "cancelled" {
				continue
			}
			ev, err := fromGoogle(item)
			if err != nil {
				p.logger.Warn("Skipping unparsable calendar event",
					zap.String("calendar_id", calendarID),
					zap.String("event_id", item.Id),
					zap.Error(err),
				)
				continue
			}
			events = append(events, ev)
		}

		if res.NextPageToken == "" {
			return events, nil
		}
		pageToken = res.NextPageToken
	}
}

func (p *GoogleProvider) CreateEvent(ctx context.Context, ownerToken, calendarID string, ev Event) (string, error) {
	svc, err := p.service(ctx, ownerToken)
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(calendarID, toGoogle(ev)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return created.Id, nil
}

func (p *GoogleProvider) UpdateEvent(ctx context.Context, ownerToken, calendarID string, ev Event) error {
	svc, err := p.service(ctx, ownerToken)
	if err != nil {
		return err
	}

	if _, err := svc.Events.Update(calendarID, ev.ID, toGoogle(ev)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

// DeleteEvent treats an already deleted event as success.
func (p *GoogleProvider) DeleteEvent(ctx context.Context, ownerToken, calendarID, eventID string) error {
	svc, err := p.service(ctx, ownerToken)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func fromGoogle(item *gcal.Event) (Event, error) {
	ev := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Recurring:   item.RecurringEventId != "" || len(item.Recurrence) > 0,
	}
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}

	if item.Start == nil || item.End == nil {
		return ev, errors.New("event has no start or end")
	}

	if item.Start.DateTime == "" {
		ev.AllDay = true
		start, err := time.Parse(time.DateOnly, item.Start.Date)
		if err != nil {
			return ev, fmt.Errorf("parse start date: %w", err)
		}
		end, err := time.Parse(time.DateOnly, item.End.Date)
		if err != nil {
			return ev, fmt.Errorf("parse end date: %w", err)
		}
		ev.Start, ev.End = start, end
		return ev, nil
	}

	start, err := time.Parse(time.RFC3339, item.Start.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parse start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, item.End.DateTime)
	if err != nil {
		return ev, fmt.Errorf("parse end: %w", err)
	}
	ev.Start, ev.End = start, end
	return ev, nil
}

func toGoogle(ev Event) *gcal.Event {
	item := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}
	for _, email := range ev.Attendees {
		item.Attendees = append(item.Attendees, &gcal.EventAttendee{Email: email})
	}
	return item
}
