package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// CatalogClient fetches prize item metadata from the catalog service. Items
// are immutable once published, so responses are cached for the process
// lifetime.
type CatalogClient struct {
	*BaseClient

	mu    sync.RWMutex
	cache map[uuid.UUID]*Item
}

func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		BaseClient: NewBaseClient(baseURL),
		cache:      make(map[uuid.UUID]*Item),
	}
}

// Item is a prize listing from the catalog service.
type Item struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Value    int64     `json:"value"` // retail value in cents
	ImageRef string    `json:"image_ref"`
}

func (c *CatalogClient) GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	c.mu.RLock()
	if item, ok := c.cache[itemID]; ok {
		c.mu.RUnlock()
		return item, nil
	}
	c.mu.RUnlock()

	body, err := c.Get(ctx, fmt.Sprintf("/api/items/%s", itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}

	var item Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item response: %w, raw response: %s", err, string(body))
	}

	c.mu.Lock()
	c.cache[itemID] = &item
	c.mu.Unlock()

	return &item, nil
}
