package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/httpclient"
	"github.com/tphakala/syncbridge/internal/migration"
)

const (
	sourceURL  = "https://legacy.example/visits"
	targetURL  = "https://target.example/visits"
	mappingURL = "https://mapping.example/mapping"
)

func newClient(t *testing.T, name, baseURL string, mock *httpmock.MockTransport) *httpclient.Client {
	t.Helper()
	return httpclient.New(httpclient.Config{
		Name:      name,
		BaseURL:   baseURL,
		Timeout:   time.Second,
		RetryWait: time.Millisecond,
	}, nil, httpclient.WithTransport(mock))
}

func TestSourceCountsWithFilter(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, sourceURL+"/count", func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "1", q.Get("size"))
		assert.Equal(t, "NTH", q.Get("siteId"))
		return httpmock.NewJsonResponse(http.StatusOK, map[string]int{"totalElements": 14})
	})
	source := NewSourceClient(newClient(t, "source", sourceURL, mock))

	total, err := source.CountAndFirstPage(t.Context(), Filter{"siteId": "NTH"}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(14), total)
}

func TestSourcePagingOverridesFilter(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, sourceURL+"/ids", func(req *http.Request) (*http.Response, error) {
		q := req.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("size"))
		assert.Equal(t, "STH", q.Get("siteId"))
		return httpmock.NewJsonResponse(http.StatusOK, map[string][]string{"content": {"L021", "L022"}})
	})
	source := NewSourceClient(newClient(t, "source", sourceURL, mock))

	ids, err := source.GetPage(t.Context(), Filter{"siteId": "STH", "page": "9"}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"L021", "L022"}, ids)
}

func TestSourceDetail(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, sourceURL+"/L001",
		httpmock.NewStringResponder(http.StatusOK, `{"id":"L001","visitor":"Ann"}`).
			HeaderSet(http.Header{"Content-Type": {"application/json"}}))
	mock.RegisterResponder(http.MethodGet, sourceURL+"/L404",
		httpmock.NewStringResponder(http.StatusNotFound, ``))
	source := NewSourceClient(newClient(t, "source", sourceURL, mock))

	e, err := source.GetDetail(t.Context(), "L001")
	require.NoError(t, err)
	assert.Equal(t, Entity{"id": "L001", "visitor": "Ann"}, e)

	_, err = source.GetDetail(t.Context(), "L404")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestTargetCreate(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, targetURL, func(req *http.Request) (*http.Response, error) {
		var body Entity
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "Ann", body["visitorName"])
		return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{"id": "N001"})
	})
	target := NewTargetClient(newClient(t, "target", targetURL, mock))

	id, err := target.Create(t.Context(), Entity{"visitorName": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "N001", id)
}

func TestTargetCreateWithoutID(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, targetURL, httpmock.NewJsonResponderOrPanic(http.StatusCreated, map[string]string{}))
	target := NewTargetClient(newClient(t, "target", targetURL, mock))

	_, err := target.Create(t.Context(), Entity{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryIntegration))
}

func TestMappingClientLookup(t *testing.T) {
	when := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, mappingURL+"/legacy-id/L001",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, migration.MappingRecord{
			LegacyID:    "L001",
			NewID:       "N001",
			MappingType: migration.MappingMigrated,
			Label:       "m-1",
			WhenCreated: when,
		}))
	mock.RegisterResponder(http.MethodGet, mappingURL+"/legacy-id/L002",
		httpmock.NewStringResponder(http.StatusNotFound, ``))
	store := NewMappingClient(newClient(t, "mapping", mappingURL, mock))

	rec, err := store.GetByLegacyID(t.Context(), "L001")
	require.NoError(t, err)
	assert.Equal(t, "N001", rec.NewID)
	assert.Equal(t, "m-1", rec.Label)
	assert.True(t, when.Equal(rec.WhenCreated))

	_, err = store.GetByLegacyID(t.Context(), "L002")
	require.Error(t, err)
	assert.ErrorIs(t, err, migration.ErrMappingNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestMappingClientCreateConflict(t *testing.T) {
	existing := migration.MappingRecord{LegacyID: "L001", NewID: "N001", MappingType: migration.MappingMigrated, Label: "m-1"}
	duplicate := migration.MappingRecord{LegacyID: "L001", NewID: "N009", MappingType: migration.MappingMigrated, Label: "m-1"}

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, mappingURL, func(req *http.Request) (*http.Response, error) {
		var rec migration.MappingRecord
		require.NoError(t, json.NewDecoder(req.Body).Decode(&rec))
		if rec.NewID == "N001" {
			return httpmock.NewStringResponse(http.StatusCreated, ``), nil
		}
		return httpmock.NewJsonResponse(http.StatusConflict, migration.DuplicateMappingError{Existing: existing, Duplicate: rec})
	})
	store := NewMappingClient(newClient(t, "mapping", mappingURL, mock))

	require.NoError(t, store.Create(t.Context(), existing))

	err := store.Create(t.Context(), duplicate)
	var dup *migration.DuplicateMappingError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "N001", dup.Existing.NewID)
	assert.Equal(t, "N009", dup.Duplicate.NewID)
}

func TestMappingClientTransientFailure(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, mappingURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, ``))
	store := NewMappingClient(newClient(t, "mapping", mappingURL, mock))

	err := store.Create(t.Context(), migration.MappingRecord{LegacyID: "L001", NewID: "N001"})
	require.Error(t, err)
	var dup *migration.DuplicateMappingError
	assert.NotErrorAs(t, err, &dup)
}

func TestMappingClientCount(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, mappingURL+"/migration-id/m-1/count",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]int{"count": 12}))
	store := NewMappingClient(newClient(t, "mapping", mappingURL, mock))

	n, err := store.CountByLabel(t.Context(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestFieldMapTransform(t *testing.T) {
	transform := FieldMapTransform(map[string]string{
		"VisitorName": "visitorName",
		"internal":    "",
	})

	out, err := transform(context.Background(), Entity{
		"visitorname": "Ann",
		"Internal":    true,
		"siteId":      "NTH",
	})
	require.NoError(t, err)
	assert.Equal(t, Entity{"visitorName": "Ann", "siteId": "NTH"}, out)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("  L001 ")
	require.NoError(t, err)
	assert.Equal(t, "L001", key)

	_, err = ParseKey(" ")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestCapabilitiesWireDomainClients(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, sourceURL+"/count",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]int{"totalElements": 2}))
	mock.RegisterResponder(http.MethodGet, sourceURL+"/ids",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string][]string{"content": {"L001", "L002"}}))
	mock.RegisterResponder(http.MethodGet, `=~^`+sourceURL+`/L00\d$`,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]string{"name": "x", "secret": "y"}))
	var created int
	mock.RegisterResponder(http.MethodPost, targetURL, func(req *http.Request) (*http.Response, error) {
		var body Entity
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.NotContains(t, body, "secret")
		created++
		return httpmock.NewJsonResponse(http.StatusCreated, map[string]string{"id": fmt.Sprintf("N%03d", created)})
	})

	caps := NewCapabilities(conf.DomainSettings{
		Name:      "visits",
		SourceURL: sourceURL,
		TargetURL: targetURL,
		FieldMap:  map[string]string{"secret": ""},
	}, conf.HTTPSettings{Timeout: time.Second}, nil, httpclient.WithTransport(mock))

	assert.Equal(t, "L007", caps.LegacyID("L007"))

	total, err := caps.Source.CountAndFirstPage(t.Context(), Filter{}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	ids, err := caps.Source.GetPage(t.Context(), Filter{}, 0, 10)
	require.NoError(t, err)
	for _, id := range ids {
		e, err := caps.Source.GetDetail(t.Context(), id)
		require.NoError(t, err)
		r, err := caps.Transform(t.Context(), e)
		require.NoError(t, err)
		_, err = caps.Target.Create(t.Context(), r)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, created)
}
