package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/rtclient/internal/auth"
	apierrors "github.com/tejusbharadwaj/rtclient/internal/errors"
	"github.com/tejusbharadwaj/rtclient/internal/models"
	"github.com/tejusbharadwaj/rtclient/internal/transport"
)

// fakeAPI records every request it receives and answers from per-path handlers.
type fakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]http.HandlerFunc
}

type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{handlers: map[string]http.HandlerFunc{}}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		h, ok := f.handlers[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *fakeAPI) respond(path string, status int, body string) {
	f.handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeAPI) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAPI) count(path string) int {
	n := 0
	for _, r := range f.recorded() {
		if r.path == path {
			n++
		}
	}
	return n
}

func newKeyClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	creds, err := auth.NewStaticKey("test-key")
	require.NoError(t, err)
	client, err := NewClient(f.URL+"/api", creds, WithHTTPClient(f.Client()))
	require.NoError(t, err)
	return client
}

func newTokenClient(t *testing.T, f *fakeAPI) *Client {
	t.Helper()
	base, err := transport.ParseBaseURL(f.URL + "/api")
	require.NoError(t, err)
	creds, err := auth.NewExchangedToken(base, "client", "secret", f.Client())
	require.NoError(t, err)
	client, err := NewClient(f.URL+"/api", creds, WithHTTPClient(f.Client()))
	require.NoError(t, err)
	return client
}

func window() (models.Timestamp, models.Timestamp) {
	end := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.NewTimestamp(end.Add(-15 * time.Minute)), models.NewTimestamp(end)
}

func TestListMeasurements(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/measurements", http.StatusOK, `[
		{"id": 1, "databaseId": 10, "name": "P", "index": 3, "defaultAgg": "mean"},
		{"ID": 2, "DatabaseId": 20, "Name": "Q", "Index": 4, "DefaultAgg": "last"}
	]`)

	client := newKeyClient(t, f)
	got, err := client.ListMeasurements(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 3, got[0].Index)
	assert.Equal(t, 20, got[1].DatabaseID)
	assert.Equal(t, "last", got[1].DefaultAgg)

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].method)
	assert.Equal(t, "Bearer test-key", reqs[0].auth)
}

func TestListMeasurementsEmptyBody(t *testing.T) {
	for name, body := range map[string]string{"empty": "", "null": "null", "empty list": "[]"} {
		t.Run(name, func(t *testing.T) {
			f := newFakeAPI(t)
			f.respond("/api/measurements", http.StatusOK, body)

			got, err := newKeyClient(t, f).ListMeasurements(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestListMeasurementsErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: apierrors.ErrTransport, wantStatus: 500},
		{name: "forbidden", status: http.StatusForbidden, wantErr: apierrors.ErrTransport, wantStatus: 403},
		{name: "object instead of list", status: http.StatusOK, body: `{"id": 1}`, wantErr: apierrors.ErrDecode},
		{name: "truncated", status: http.StatusOK, body: `[{"id": 1`, wantErr: apierrors.ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeAPI(t)
			f.respond("/api/measurements", tt.status, tt.body)

			_, err := newKeyClient(t, f).ListMeasurements(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.wantStatus, apierrors.StatusCode(err))
		})
	}
}

func TestFetchValuesSingleRequest(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/Query", http.StatusOK, `[
		{"index": 2, "timestamp": "2024-06-01T11:50:00Z", "value": 1.5},
		{"index": 1, "timestamp": "2024-06-01T11:45:00", "value": -3},
		{"index": 2, "timestamp": "2024-06-01T11:45:00Z", "value": 1.5}
	]`)

	start, end := window()
	values, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		DatabaseID:         10,
		MeasurementIndexes: []string{"1", "2"},
		StartTime:          start,
		EndTime:            end,
		AggFunction:        "mean",
	})
	require.NoError(t, err)

	// Server order, duplicates kept.
	require.Len(t, values, 3)
	assert.Equal(t, []int{2, 1, 2}, []int{values[0].Index, values[1].Index, values[2].Index})
	assert.Equal(t, -3.0, values[1].Value)
	assert.True(t, values[1].Timestamp.Equal(time.Date(2024, 6, 1, 11, 45, 0, 0, time.UTC)))

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].body, &sent))
	assert.Equal(t, float64(10), sent["databaseId"])
	assert.Equal(t, []any{"1", "2"}, sent["measurementIndexes"])
	assert.Equal(t, "mean", sent["aggFunction"])
	assert.Equal(t, "200ms", sent["windowPeriod"])
	assert.Equal(t, "2024-06-01T11:45:00Z", sent["startTime"])
	assert.Equal(t, "2024-06-01T12:00:00Z", sent["endTime"])
}

func TestFetchValuesEmptyIndexesIssuesNoRequest(t *testing.T) {
	f := newFakeAPI(t)
	start, end := window()

	values, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		DatabaseID: 10,
		StartTime:  start,
		EndTime:    end,
	})
	require.NoError(t, err)
	assert.NotNil(t, values)
	assert.Empty(t, values)
	assert.Empty(t, f.recorded())
}

func TestFetchValuesRejectsInvertedWindow(t *testing.T) {
	f := newFakeAPI(t)
	start, end := window()

	_, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		DatabaseID:         10,
		MeasurementIndexes: []string{"1"},
		StartTime:          end,
		EndTime:            start,
	})
	assert.True(t, errors.Is(err, apierrors.ErrInvalidArgument))
	assert.Empty(t, f.recorded())
}

func TestFetchValuesKeepsExplicitWindowPeriod(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/Query", http.StatusOK, `[]`)
	start, end := window()

	_, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		MeasurementIndexes: []string{"1"},
		StartTime:          start,
		EndTime:            end,
		WindowPeriod:       "1m",
	})
	require.NoError(t, err)

	var sent models.QueryRequest
	require.NoError(t, json.Unmarshal(f.recorded()[0].body, &sent))
	assert.Equal(t, "1m", sent.WindowPeriod)
}

func TestFetchValuesMalformedBodyIsDecodeError(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/Query", http.StatusOK, `[{"index": 1, "value": "not-a-number"`)
	start, end := window()

	_, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		MeasurementIndexes: []string{"1"},
		StartTime:          start,
		EndTime:            end,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrDecode))
	assert.False(t, errors.Is(err, apierrors.ErrTransport))
}

func TestFetchValuesNonSuccessIsTransportError(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/Query", http.StatusBadRequest, `{"error":"too many indexes"}`)
	start, end := window()

	_, err := newKeyClient(t, f).FetchValues(context.Background(), models.QueryRequest{
		MeasurementIndexes: []string{"1"},
		StartTime:          start,
		EndTime:            end,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrTransport))
	assert.Equal(t, http.StatusBadRequest, apierrors.StatusCode(err))
}

func TestTransportFailureIsTransportError(t *testing.T) {
	f := newFakeAPI(t)
	client := newKeyClient(t, f)
	f.Close()

	_, err := client.ListMeasurements(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrTransport))
}

func TestTokenModeUsesVersionedRoutesAndAuthenticatesOnce(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/v1/auth/token", http.StatusOK, `{"accessToken":"tok","tokenType":"Bearer","expiresIn":3600}`)
	f.respond("/api/v1/measurements", http.StatusOK, `[{"id":1,"databaseId":10,"index":1,"defaultAgg":"mean"}]`)
	f.respond("/api/v1/Query", http.StatusOK, `[{"index":1,"timestamp":"2024-06-01T11:50:00Z","value":2}]`)

	client := newTokenClient(t, f)
	ctx := context.Background()

	_, err := client.ListMeasurements(ctx)
	require.NoError(t, err)

	start, end := window()
	for i := 0; i < 2; i++ {
		_, err = client.FetchValues(ctx, models.QueryRequest{
			DatabaseID:         10,
			MeasurementIndexes: []string{"1"},
			StartTime:          start,
			EndTime:            end,
		})
		require.NoError(t, err)
	}

	reqs := f.recorded()
	require.Len(t, reqs, 4)
	assert.Equal(t, "/api/v1/auth/token", reqs[0].path, "authentication precedes data requests")
	for _, r := range reqs[1:] {
		assert.Equal(t, "Bearer tok", r.auth)
	}
	assert.Equal(t, 1, f.count("/api/v1/auth/token"))
}

func TestEnsureAuthenticated(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/v1/auth/token", http.StatusOK, `{"accessToken":"tok","tokenType":"Bearer","expiresIn":3600}`)
	f.respond("/api/v1/measurements", http.StatusOK, `[]`)

	client := newTokenClient(t, f)
	ctx := context.Background()

	require.NoError(t, client.EnsureAuthenticated(ctx))
	require.NoError(t, client.EnsureAuthenticated(ctx))
	assert.Equal(t, 1, f.count("/api/v1/auth/token"))
	assert.Len(t, f.recorded(), 1, "no data request is sent")

	_, err := client.ListMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.count("/api/v1/auth/token"))

	keyAPI := newFakeAPI(t)
	require.NoError(t, newKeyClient(t, keyAPI).EnsureAuthenticated(ctx))
	assert.Empty(t, keyAPI.recorded(), "api keys need no exchange")
}

func TestTokenExchangeFailureStopsDataCall(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/v1/auth/token", http.StatusUnauthorized, `{"error":"invalid_client"}`)
	f.respond("/api/v1/measurements", http.StatusOK, `[]`)

	_, err := newTokenClient(t, f).ListMeasurements(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apierrors.ErrAuthentication))
	assert.Equal(t, 0, f.count("/api/v1/measurements"))
}

func TestUnauthorizedDataCallInvalidatesToken(t *testing.T) {
	f := newFakeAPI(t)
	f.respond("/api/v1/auth/token", http.StatusOK, `{"accessToken":"tok","tokenType":"Bearer","expiresIn":0}`)
	f.respond("/api/v1/measurements", http.StatusUnauthorized, ``)

	client := newTokenClient(t, f)
	ctx := context.Background()

	_, err := client.ListMeasurements(ctx)
	assert.True(t, errors.Is(err, apierrors.ErrTransport))
	assert.Equal(t, 1, f.count("/api/v1/measurements"), "no automatic retry")

	f.respond("/api/v1/measurements", http.StatusOK, `[]`)
	_, err = client.ListMeasurements(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.count("/api/v1/auth/token"))
}

func TestNewClientValidation(t *testing.T) {
	creds, err := auth.NewStaticKey("k")
	require.NoError(t, err)

	_, err = NewClient("", creds)
	assert.True(t, errors.Is(err, apierrors.ErrInvalidArgument))

	_, err = NewClient("https://tenant.powerp.app/rt-api/api", nil)
	assert.True(t, errors.Is(err, apierrors.ErrInvalidArgument))

	client, err := NewClient("https://tenant.powerp.app/rt-api/api", creds)
	require.NoError(t, err)
	assert.Equal(t, "https://tenant.powerp.app/rt-api/api/", client.BaseURL().String())
}
