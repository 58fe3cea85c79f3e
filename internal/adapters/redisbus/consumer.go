package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"reclaim/internal/domain"
	"reclaim/internal/ports"
)

const (
	ChannelItemCreated  = "item.created"
	ChannelItemEnriched = "item.enriched"
)

// itemCreated is the snapshot the posts collaborator publishes on creation.
type itemCreated struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Polarity      string    `json:"polarity"`
	Status        string    `json:"status"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	SearchRadiusM *float64  `json:"search_radius_m,omitempty"`
	ReportedAt    time.Time `json:"reported_at"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	OwnerRef      string    `json:"owner_ref"`
}

// itemEnriched carries the visual tags attached asynchronously.
type itemEnriched struct {
	ID         string             `json:"id"`
	VisualTags []domain.VisualTag `json:"visual_tags"`
}

// Consumer translates inbound item notifications into stored snapshots plus
// ingest jobs. It only stages work; the worker pool does the scoring, so a
// slow pass never stalls the subscription.
type Consumer struct {
	client *redis.Client
	items  ports.ItemRepository
	jobs   ports.JobRepository
}

func NewConsumer(client *redis.Client, items ports.ItemRepository, jobs ports.JobRepository) *Consumer {
	return &Consumer{client: client, items: items, jobs: jobs}
}

// Run blocks consuming item notifications until ctx is cancelled. A message
// that fails to process is logged and dropped; the posts collaborator
// re-publishes on its own retry schedule.
func (c *Consumer) Run(ctx context.Context) {
	pubsub := c.client.Subscribe(ctx, ChannelItemCreated, ChannelItemEnriched)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.handle(ctx, msg.Channel, []byte(msg.Payload)); err != nil {
				log.Printf("redisbus: %s: %v", msg.Channel, err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, channel string, payload []byte) error {
	switch channel {
	case ChannelItemCreated:
		var ev itemCreated
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		// A snapshot with a polarity outside lost/found never enters the
		// store; downstream scoring has no meaning for it.
		polarity := domain.Polarity(ev.Polarity)
		if polarity != domain.PolarityLost && polarity != domain.PolarityFound {
			return fmt.Errorf("item %s: unknown polarity %q", ev.ID, ev.Polarity)
		}
		status := domain.ItemStatus(ev.Status)
		if status == "" {
			status = domain.ItemActive
		}
		item := domain.Item{
			ID:            ev.ID,
			Category:      ev.Category,
			Polarity:      polarity,
			Status:        status,
			Lat:           ev.Lat,
			Lng:           ev.Lng,
			SearchRadiusM: ev.SearchRadiusM,
			ReportedAt:    ev.ReportedAt,
			Title:         ev.Title,
			Description:   ev.Description,
			OwnerRef:      ev.OwnerRef,
		}
		if err := c.items.Upsert(ctx, item); err != nil {
			return err
		}
		_, err := c.jobs.Enqueue(ctx, ports.JobInitialPass, ev.ID)
		return err

	case ChannelItemEnriched:
		var ev itemEnriched
		if err := json.Unmarshal(payload, &ev); err != nil {
			return err
		}
		if err := c.items.ApplyVisualTags(ctx, ev.ID, ev.VisualTags); err != nil {
			return err
		}
		_, err := c.jobs.Enqueue(ctx, ports.JobEnhancedPass, ev.ID)
		return err
	}
	return nil
}
