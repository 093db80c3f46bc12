package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"calendar-countdown/domain"
)

const (
	eventPartition   = "event"
	counterPartition = "counter"
	counterRow       = "events"
	maxIDAttempts    = 8
)

// Storage keeps events in an Azure table. Every event lives in one partition,
// keyed by its zero-padded ID; IDs come from an ETag-guarded counter entity.
type Storage struct {
	table *aztables.Client
	loc   *time.Location
}

// New creates a Storage instance from the given connection string.
func New(connStr, eventsTable string, loc *time.Location) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return NewWithClient(svc.NewClient(eventsTable), loc), nil
}

// NewWithClient wraps an existing table client.
func NewWithClient(table *aztables.Client, loc *time.Location) *Storage {
	if loc == nil {
		loc = time.UTC
	}
	return &Storage{table: table, loc: loc}
}

type eventEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Title        string `json:"Title,omitempty"`
	ScheduledAt  string `json:"ScheduledAt,omitempty"`
}

type counterEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Next         int64  `json:"Next,string"`
	NextType     string `json:"Next@odata.type"`
}

func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func decodeEventEntity(data []byte, loc *time.Location) (domain.Event, error) {
	var ent eventEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Event{}, err
	}
	id, err := strconv.ParseInt(ent.RowKey, 10, 64)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event row key %q: %w", ent.RowKey, err)
	}
	at, err := time.ParseInLocation(domain.StorageLayout, ent.ScheduledAt, loc)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %d scheduled at %q: %w", id, ent.ScheduledAt, err)
	}
	return domain.Event{ID: id, Title: ent.Title, ScheduledAt: at}, nil
}

func encodeEventEntity(ev domain.Event) ([]byte, error) {
	return json.Marshal(eventEntity{
		PartitionKey: eventPartition,
		RowKey:       rowKey(ev.ID),
		Title:        ev.Title,
		ScheduledAt:  ev.ScheduledAt.Format(domain.StorageLayout),
	})
}

func hasStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func (s *Storage) list(ctx context.Context, filter string) ([]domain.Event, error) {
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	events := []domain.Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			ev, err := decodeEventEntity(raw, s.loc)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return domain.Less(events[i], events[j]) })
	return events, nil
}

func upcomingFilter(from time.Time, excludeIDs []int64) string {
	var b strings.Builder
	b.WriteString("PartitionKey eq '" + eventPartition + "'")
	b.WriteString(" and ScheduledAt ge '" + from.Format(domain.StorageLayout) + "'")
	for _, id := range excludeIDs {
		b.WriteString(" and RowKey ne '" + rowKey(id) + "'")
	}
	return b.String()
}

// QueryAscendingFrom relies on the storage layout sorting lexicographically.
func (s *Storage) QueryAscendingFrom(ctx context.Context, from time.Time, excludeIDs []int64, offset, limit int) ([]domain.Event, error) {
	events, err := s.list(ctx, upcomingFilter(from.In(s.loc), excludeIDs))
	if err != nil {
		return nil, err
	}
	return page(events, offset, limit), nil
}

// ListEvents returns every event ordered by scheduled time.
func (s *Storage) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.list(ctx, "PartitionKey eq '"+eventPartition+"'")
}

func (s *Storage) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	resp, err := s.table.GetEntity(ctx, eventPartition, rowKey(id), nil)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, err
	}
	return decodeEventEntity(resp.Value, s.loc)
}

// CreateEvent allocates the next ID and inserts the event.
func (s *Storage) CreateEvent(ctx context.Context, title string, at time.Time) (domain.Event, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return domain.Event{}, fmt.Errorf("allocate event id: %w", err)
	}
	ev := domain.Event{ID: id, Title: title, ScheduledAt: at.In(s.loc)}
	payload, err := encodeEventEntity(ev)
	if err != nil {
		return domain.Event{}, err
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		return domain.Event{}, fmt.Errorf("insert event %d: %w", id, err)
	}
	return ev, nil
}

func (s *Storage) UpdateEvent(ctx context.Context, ev domain.Event) error {
	ev.ScheduledAt = ev.ScheduledAt.In(s.loc)
	payload, err := encodeEventEntity(ev)
	if err != nil {
		return err
	}
	return s.merge(ctx, payload)
}

// UpdateScheduledAt merges only the datetime column.
func (s *Storage) UpdateScheduledAt(ctx context.Context, id int64, at time.Time) error {
	payload, err := json.Marshal(eventEntity{
		PartitionKey: eventPartition,
		RowKey:       rowKey(id),
		ScheduledAt:  at.In(s.loc).Format(domain.StorageLayout),
	})
	if err != nil {
		return err
	}
	return s.merge(ctx, payload)
}

func (s *Storage) merge(ctx context.Context, payload []byte) error {
	et := azcore.ETagAny
	_, err := s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if hasStatus(err, http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}

func (s *Storage) nextID(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		resp, err := s.table.GetEntity(ctx, counterPartition, counterRow, nil)
		if err != nil {
			if !hasStatus(err, http.StatusNotFound) {
				return 0, err
			}
			payload, err := json.Marshal(counterEntity{PartitionKey: counterPartition, RowKey: counterRow, Next: 1, NextType: "Edm.Int64"})
			if err != nil {
				return 0, err
			}
			if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
				if hasStatus(err, http.StatusConflict) {
					continue
				}
				return 0, err
			}
			return 1, nil
		}

		var c counterEntity
		if err := json.Unmarshal(resp.Value, &c); err != nil {
			return 0, err
		}
		c.Next++
		c.NextType = "Edm.Int64"
		payload, err := json.Marshal(c)
		if err != nil {
			return 0, err
		}
		etag := resp.ETag
		_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err != nil {
			if hasStatus(err, http.StatusPreconditionFailed) {
				continue
			}
			return 0, err
		}
		return c.Next, nil
	}
	return 0, domain.ErrConcurrencyConflict
}

// CreateTable creates the events table, tolerating an existing one.
func (s *Storage) CreateTable(ctx context.Context) error {
	_, err := s.table.CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
	}
	return err
}

func page(events []domain.Event, offset, limit int) []domain.Event {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []domain.Event{}
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}
