package httpremote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/todosync/api/transport"
	"github.com/fastygo/todosync/domain"
)

type captured struct {
	method   string
	path     string
	auth     string
	revision string
	body     []byte
}

func serve(t *testing.T, handler func(ctx *fasthttp.RequestCtx)) (*Client, chan captured) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	seen := make(chan captured, 16)
	server := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		seen <- captured{
			method:   string(ctx.Method()),
			path:     string(ctx.Path()),
			auth:     string(ctx.Request.Header.Peek("Authorization")),
			revision: string(ctx.Request.Header.Peek(transport.HeaderRevision)),
			body:     append([]byte(nil), ctx.PostBody()...),
		}
		handler(ctx)
	}}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := New(Config{
		BaseURL:  "http://remote.test",
		Token:    "secret-token",
		DeviceID: "device-1",
		Timeout:  time.Second,
		Dial:     func(string) (net.Conn, error) { return ln.Dial() },
	}, nil)
	return client, seen
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.SetContentType("application/json")
	body, _ := json.Marshal(v)
	ctx.SetBody(body)
}

func sampleRecord() domain.Record {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	deadline := created.Add(24 * time.Hour)
	modified := created.Add(time.Minute)
	return domain.Record{
		ID:         uuid.MustParse("6f0a6c52-3b0e-4b8e-9d55-1a2b3c4d5e6f"),
		Text:       "Buy milk",
		Importance: domain.ImportanceImportant,
		Deadline:   &deadline,
		CreatedAt:  created,
		ModifiedAt: &modified,
		TextColor:  "#FF0000",
	}
}

func TestFetchList_DecodesAndTracksRevision(t *testing.T) {
	rec := sampleRecord()
	client, seen := serve(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, http.StatusOK, transport.NewListResponse(transport.FromRecords([]domain.Record{rec}, "other"), 7))
	})

	records, err := client.FetchList(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, rec.Equal(records[0]))
	assert.Equal(t, int64(7), client.Revision())

	req := <-seen
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/v1/list", req.path)
	assert.Equal(t, "Bearer secret-token", req.auth)
	assert.Equal(t, "0", req.revision)
}

func TestSyncList_UploadsWholeList(t *testing.T) {
	rec := sampleRecord()
	client, seen := serve(t, func(ctx *fasthttp.RequestCtx) {
		var body transport.ListRequest
		_ = json.Unmarshal(ctx.PostBody(), &body)
		writeJSON(ctx, http.StatusOK, transport.NewListResponse(body.List, 3))
	})

	merged, err := client.SyncList(context.Background(), []domain.Record{rec})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.True(t, rec.Equal(merged[0]))

	req := <-seen
	assert.Equal(t, http.MethodPatch, req.method)
	var body transport.ListRequest
	require.NoError(t, json.Unmarshal(req.body, &body))
	require.Len(t, body.List, 1)
	assert.Equal(t, "device-1", body.List[0].LastUpdatedBy)
	assert.Equal(t, rec.ModifiedAt.UnixMilli(), body.List[0].ChangedAt)
}

func TestSingleRecordRoutes(t *testing.T) {
	rec := sampleRecord()
	client, seen := serve(t, func(ctx *fasthttp.RequestCtx) {
		el := transport.FromRecord(rec, "device-1")
		writeJSON(ctx, http.StatusOK, transport.NewElementResponse(&el, 4))
	})
	ctx := context.Background()

	created, err := client.Create(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.True(t, rec.Equal(*created))
	req := <-seen
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v1/list", req.path)

	_, err = client.Update(ctx, rec)
	require.NoError(t, err)
	req = <-seen
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/api/v1/list/"+rec.ID.String(), req.path)
	assert.Equal(t, "4", req.revision, "revision from the previous answer is echoed")

	_, err = client.Delete(ctx, rec.ID)
	require.NoError(t, err)
	req = <-seen
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Empty(t, req.body)
}

func TestStatusClassification(t *testing.T) {
	cases := map[int]domain.ErrorCode{
		http.StatusInternalServerError: domain.ErrCodeTransient,
		http.StatusServiceUnavailable:  domain.ErrCodeTransient,
		http.StatusBadRequest:          domain.ErrCodePermanent,
		http.StatusUnauthorized:        domain.ErrCodePermanent,
		http.StatusNotFound:            domain.ErrCodePermanent,
	}
	for status, want := range cases {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
				writeJSON(ctx, status, transport.Failure("X", "nope", nil))
			})
			_, err := client.Create(context.Background(), sampleRecord())
			require.Error(t, err)
			assert.True(t, domain.IsDomainError(err, want), err.Error())
			assert.Contains(t, err.Error(), "(X: nope)")
		})
	}
}

func TestNetworkErrorIsTransient(t *testing.T) {
	client := New(Config{
		BaseURL: "http://remote.test",
		Dial:    func(string) (net.Conn, error) { return nil, errors.New("connection refused") },
	}, nil)

	_, err := client.FetchList(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeTransient))
}

func TestTimeoutIsTransient(t *testing.T) {
	client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(ctx, http.StatusOK, transport.NewListResponse(nil, 1))
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchList(ctx)
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodeTransient))
}

func TestInvalidPayloadIsPermanent(t *testing.T) {
	client, _ := serve(t, func(ctx *fasthttp.RequestCtx) {
		writeJSON(ctx, http.StatusOK, transport.NewListResponse([]transport.Element{{ID: "not-a-uuid", Text: "x", CreatedAt: 1}}, 1))
	})

	_, err := client.FetchList(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsDomainError(err, domain.ErrCodePermanent))
}

func TestLogin_StoresToken(t *testing.T) {
	client, seen := serve(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/api/v1/auth/login" {
			writeJSON(ctx, http.StatusCreated, transport.Success(transport.LoginResponse{Token: "fresh", SessionID: "s1"}))
			return
		}
		writeJSON(ctx, http.StatusOK, transport.NewListResponse(nil, 0))
	})
	ctx := context.Background()

	res, err := client.Login(ctx, "owner-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "s1", res.SessionID)
	login := <-seen
	var body transport.AuthLoginRequest
	require.NoError(t, json.Unmarshal(login.body, &body))
	assert.Equal(t, "owner-1", body.OwnerID)
	assert.Equal(t, "device-1", body.DeviceID)

	_, err = client.FetchList(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", (<-seen).auth)
}
