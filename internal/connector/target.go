package connector

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
)

// TargetClient creates entities in a target REST service.
type TargetClient struct {
	http *httpclient.Client
}

// NewTargetClient returns a target backed by client.
func NewTargetClient(client *httpclient.Client) *TargetClient {
	return &TargetClient{http: client}
}

type createResponse struct {
	ID string `json:"id"`
}

// Create posts e and returns the id the target assigned.
func (t *TargetClient) Create(ctx context.Context, e Entity) (string, error) {
	var out createResponse
	_, err := t.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Body:   e,
		Result: &out,
	})
	if err != nil {
		return "", fmt.Errorf("create entity: %w", err)
	}
	if out.ID == "" {
		return "", errors.Newf("target %s returned no id", t.http.Name()).
			Component("connector").
			Category(errors.CategoryIntegration).
			Build()
	}
	return out.ID, nil
}
