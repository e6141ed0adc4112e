package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careAlert/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// IncidentCache keeps rendered list pages. Pages are keyed by a generation
// counter, so Invalidate is one INCR and stale pages simply expire.
type IncidentCache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewIncidentCache(client *goredis.Client, ttl time.Duration) *IncidentCache {
	return &IncidentCache{
		client: client,
		prefix: "incidents:list",
		ttl:    ttl,
	}
}

func (c *IncidentCache) generationKey() string { return c.prefix + ":gen" }

func (c *IncidentCache) pageKey(gen int64, page, limit int) string {
	return fmt.Sprintf("%s:%d:%d:%d", c.prefix, gen, page, limit)
}

// GetPage returns a nil page on a miss. The generation it read must be handed
// back to SetPage so a page loaded across an invalidation is never served.
func (c *IncidentCache) GetPage(ctx context.Context, page, limit int) (*domain.ListIncidentsResponse, int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, c.pageKey(gen, page, limit)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, gen, nil
		}
		return nil, gen, err
	}

	var resp domain.ListIncidentsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, gen, err
	}
	return &resp, gen, nil
}

func (c *IncidentCache) SetPage(ctx context.Context, gen int64, resp *domain.ListIncidentsResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.pageKey(gen, resp.Page, resp.Limit), b, c.ttl).Err()
}

func (c *IncidentCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.generationKey()).Err()
}
