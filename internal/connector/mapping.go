package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/migration"
)

// MappingClient is a migration.MappingStore backed by a remote mapping service.
type MappingClient struct {
	http *httpclient.Client
}

var _ migration.MappingStore = (*MappingClient)(nil)

// NewMappingClient returns a mapping store backed by client.
func NewMappingClient(client *httpclient.Client) *MappingClient {
	return &MappingClient{http: client}
}

// GetByLegacyID returns the mapping of legacyID, or an error wrapping
// migration.ErrMappingNotFound when the service answers 404.
func (m *MappingClient) GetByLegacyID(ctx context.Context, legacyID string) (*migration.MappingRecord, error) {
	var rec migration.MappingRecord
	_, err := m.http.Do(ctx, httpclient.Request{
		Method:     http.MethodGet,
		Path:       "/legacy-id/{id}",
		PathParams: map[string]string{"id": legacyID},
		Result:     &rec,
	})
	if errors.IsNotFound(err) {
		return nil, errors.New(fmt.Errorf("legacy id %s: %w", legacyID, migration.ErrMappingNotFound)).
			Component("connector").
			Category(errors.CategoryNotFound).
			Build()
	}
	if err != nil {
		return nil, fmt.Errorf("lookup mapping %s: %w", legacyID, err)
	}
	return &rec, nil
}

// Create stores rec. A 409 answer carries the colliding pair and is returned as
// *migration.DuplicateMappingError.
func (m *MappingClient) Create(ctx context.Context, rec migration.MappingRecord) error {
	resp, err := m.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Body:   rec,
	})
	if err == nil {
		return nil
	}
	if errors.IsConflict(err) && resp != nil {
		var dup migration.DuplicateMappingError
		if jerr := json.Unmarshal(resp.Body, &dup); jerr != nil {
			return errors.New(fmt.Errorf("decode duplicate mapping answer: %w", jerr)).
				Component("connector").
				Category(errors.CategoryIntegration).
				Build()
		}
		return &dup
	}
	return fmt.Errorf("create mapping %s: %w", rec.LegacyID, err)
}

type countAnswer struct {
	Count int64 `json:"count"`
}

// CountByLabel returns how many mappings carry label.
func (m *MappingClient) CountByLabel(ctx context.Context, label string) (int64, error) {
	var out countAnswer
	_, err := m.http.Do(ctx, httpclient.Request{
		Method:     http.MethodGet,
		Path:       "/migration-id/{label}/count",
		PathParams: map[string]string{"label": label},
		Result:     &out,
	})
	if err != nil {
		return 0, fmt.Errorf("count mappings of %s: %w", label, err)
	}
	return out.Count, nil
}
