package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"calendar-countdown/domain"
)

// RollMessage is published for every event moved forward by the normalizer.
type RollMessage struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// QueueNotifier publishes roll notifications to an Azure storage queue.
type QueueNotifier struct {
	queue *azqueue.QueueClient
}

// NewQueueNotifier connects to queueName using the storage connection string.
func NewQueueNotifier(connStr, queueName string) (*QueueNotifier, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 30 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, queueName, &opts)
	if err != nil {
		return nil, err
	}
	return &QueueNotifier{queue: q}, nil
}

func encodeRollMessage(ev domain.Event, from time.Time) ([]byte, error) {
	return json.Marshal(RollMessage{
		ID:    ev.ID,
		Title: ev.Title,
		From:  from.Format(domain.StorageLayout),
		To:    ev.ScheduledAt.Format(domain.StorageLayout),
	})
}

// EventRolled implements domain.RollObserver.
func (n *QueueNotifier) EventRolled(ctx context.Context, ev domain.Event, from time.Time) error {
	data, err := encodeRollMessage(ev, from)
	if err != nil {
		return err
	}
	_, err = n.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// CreateQueue creates the notification queue, tolerating an existing one.
func (n *QueueNotifier) CreateQueue(ctx context.Context) error {
	_, err := n.queue.Create(ctx, nil)
	if hasStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}
