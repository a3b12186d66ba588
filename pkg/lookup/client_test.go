package lookup

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL + "/"
	cfg.Token = "secret"
	cfg.RetryDelay = time.Millisecond
	return NewClient(cfg, nil, testLogger()), &calls
}

func TestLookupByIdentifier(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cpf/52998224725", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cpf":"52998224725","nome":"JOAO DA SILVA"}`))
	})

	rec, err := client.LookupByIdentifier(context.Background(), "529.982.247-25")
	require.NoError(t, err)
	assert.Equal(t, "JOAO DA SILVA", rec.Data["nome"])
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLookupByIdentifier_InvalidNeverCallsUpstream(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, id := range []string{"11111111111", "52998224726", "123"} {
		_, err := client.LookupByIdentifier(context.Background(), id)
		assert.ErrorIs(t, err, errors.ErrInvalidInput, id)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestLookupByIdentifier_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantStatus  int
		wantMessage string
		wantCalls   int32
		notFound    bool
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"mensagem":"CPF não encontrado"}`, wantStatus: 404, wantMessage: "CPF não encontrado", wantCalls: 1, notFound: true},
		{name: "bad request not retried", status: http.StatusBadRequest, body: `{"error":"bad"}`, wantStatus: 400, wantMessage: "bad", wantCalls: 1},
		{name: "server error retried", status: http.StatusServiceUnavailable, body: `{"message":"down"}`, wantStatus: 503, wantMessage: "down", wantCalls: 4},
		{name: "malformed body", status: http.StatusOK, body: `not json`, wantStatus: http.StatusBadGateway, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.LookupByIdentifier(context.Background(), "52998224725")
			require.Error(t, err)

			var upstream *errors.UpstreamError
			require.True(t, stderrors.As(err, &upstream))
			assert.Equal(t, tt.wantStatus, upstream.StatusCode)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, upstream.Message)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(calls))
			assert.Equal(t, tt.notFound, errors.IsNotFound(err))
		})
	}
}

func TestLookupByIdentifier_RecoversAfterServerError(t *testing.T) {
	var n int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"nome":"OK"}`))
	})

	rec, err := client.LookupByIdentifier(context.Background(), "52998224725")
	require.NoError(t, err)
	assert.Equal(t, "OK", rec.Data["nome"])
}

func TestLookupByIdentifier_NoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	client := NewClient(cfg, nil, testLogger())

	_, err := client.LookupByIdentifier(context.Background(), "52998224725")
	assert.ErrorIs(t, err, errors.ErrNoResponse)
}

func TestLookupByParentName(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "bare array", body: `[{"nome":"A"},{"nome":"B"}]`, want: 2},
		{name: "wrapped", body: `{"resultados":[{"nome":"A"}]}`, want: 1},
		{name: "empty object", body: `{}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mae", r.URL.Path)
				assert.Equal(t, "MARIA DA SILVA", r.URL.Query().Get("nome"))
				_, _ = w.Write([]byte(tt.body))
			})

			recs, err := client.LookupByParentName(context.Background(), models.ParentRoleMother, "  maria   da silva ")
			require.NoError(t, err)
			assert.Len(t, recs, tt.want)
		})
	}
}

func TestLookupByParentName_InvalidInput(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.LookupByParentName(context.Background(), models.ParentRoleFather, "Jo")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = client.LookupByParentName(context.Background(), models.ParentRole("uncle"), "JOSE")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestLookup_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client.cfg.RetryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.LookupByIdentifier(ctx, "52998224725")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWindowLimiter(t *testing.T) {
	l := NewWindowLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.Equal(t, time.Duration(0), l.reserve())
	assert.Equal(t, time.Duration(0), l.reserve())
	assert.Equal(t, time.Minute, l.reserve())

	now = now.Add(30 * time.Second)
	assert.Equal(t, 30*time.Second, l.reserve())

	now = now.Add(31 * time.Second)
	assert.Equal(t, time.Duration(0), l.reserve())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, l.Wait(ctx))
	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}
