package clients

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// IdentityClient resolves user profiles from the identity service.
type IdentityClient struct {
	*BaseClient
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		BaseClient: NewBaseClient(baseURL),
	}
}

type UserProfile struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

func (c *IdentityClient) GetUser(ctx context.Context, userID uuid.UUID) (*UserProfile, error) {
	body, err := c.Get(ctx, fmt.Sprintf("/api/users/%s", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	var profile UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user response: %w, raw response: %s", err, string(body))
	}

	return &profile, nil
}

// GetUsername returns the display name for a user. Falls back to a truncated
// user ID when the identity service has no profile, so click attribution
// never blocks admission.
func (c *IdentityClient) GetUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	profile, err := c.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Username == "" {
		return "user-" + userID.String()[:8], nil
	}
	return profile.Username, nil
}

// StaticIdentity resolves usernames from a fixed map, for development and
// tests where no identity service is running.
type StaticIdentity struct {
	Names map[uuid.UUID]string
}

func (s *StaticIdentity) GetUsername(_ context.Context, userID uuid.UUID) (string, error) {
	if name, ok := s.Names[userID]; ok {
		return name, nil
	}
	return "user-" + userID.String()[:8], nil
}
