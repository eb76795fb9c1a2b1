// Package connector implements the migration capabilities for a generic JSON
// domain served over REST: a paged source, a target, an optional remote mapping
// service and a field-renaming transform.
package connector

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"strconv"

	"github.com/tphakala/syncbridge/internal/httpclient"
)

// Filter selects source entities. Every entry is passed as a query parameter.
type Filter map[string]string

// Entity is a JSON object as returned by the source or sent to the target.
type Entity map[string]any

// SourceClient reads ids and entities from a legacy REST service.
type SourceClient struct {
	http *httpclient.Client
}

// NewSourceClient returns a source backed by client.
func NewSourceClient(client *httpclient.Client) *SourceClient {
	return &SourceClient{http: client}
}

type countResponse struct {
	TotalElements int64 `json:"totalElements"`
}

type idsResponse struct {
	Content []string `json:"content"`
}

// CountAndFirstPage asks the source for the total number of matching entities.
func (s *SourceClient) CountAndFirstPage(ctx context.Context, filter Filter, pageSize int) (int64, error) {
	var out countResponse
	_, err := s.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/count",
		Query:  query(filter, "size", strconv.Itoa(pageSize)),
		Result: &out,
	})
	if err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return out.TotalElements, nil
}

// GetPage returns the ids on one page of the filtered id space.
func (s *SourceClient) GetPage(ctx context.Context, filter Filter, pageNumber, pageSize int) ([]string, error) {
	var out idsResponse
	_, err := s.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/ids",
		Query:  query(filter, "page", strconv.Itoa(pageNumber), "size", strconv.Itoa(pageSize)),
		Result: &out,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageNumber, err)
	}
	return out.Content, nil
}

// GetDetail fetches one entity. A 404 is reported as a not-found error.
func (s *SourceClient) GetDetail(ctx context.Context, id string) (Entity, error) {
	var out Entity
	_, err := s.http.Do(ctx, httpclient.Request{
		Method:     http.MethodGet,
		Path:       "/{id}",
		PathParams: map[string]string{"id": id},
		Result:     &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// query copies filter and adds the paging pairs, which take precedence.
func query(filter Filter, pairs ...string) map[string]string {
	q := make(map[string]string, len(filter)+len(pairs)/2)
	maps.Copy(q, filter)
	for i := 0; i+1 < len(pairs); i += 2 {
		q[pairs[i]] = pairs[i+1]
	}
	return q
}
