package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	query     string
	variables map[string]any
	token     string
}

// graphqlServer answers every GraphQL POST with the next canned response
// and records what it was asked.
type graphqlServer struct {
	*httptest.Server

	calls     []recordedCall
	responses []string
	status    int
}

func newGraphQLServer(t *testing.T, responses ...string) *graphqlServer {
	t.Helper()
	gs := &graphqlServer{responses: responses, status: http.StatusOK}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gs.calls = append(gs.calls, recordedCall{
			query:     req.Query,
			variables: req.Variables,
			token:     r.Header.Get("X-Access-Token"),
		})

		if gs.status != http.StatusOK {
			w.WriteHeader(gs.status)
			return
		}
		idx := len(gs.calls) - 1
		if idx >= len(gs.responses) {
			t.Fatalf("no canned response for call %d", idx)
		}
		_, _ = w.Write([]byte(gs.responses[idx]))
	}))
	t.Cleanup(gs.Close)
	return gs
}

func newTestClient(srv *graphqlServer) *Client {
	return NewClient(ClientConfig{
		BaseURL:    srv.URL,
		APIVersion: "2024-07",
		Shop:       "test-shop.example.com",
		Token:      "tok-123",
	})
}

func stagedTargetsJSON(n int) string {
	targets := make([]string, 0, n)
	for i := 0; i < n; i++ {
		targets = append(targets, fmt.Sprintf(
			`{"url":"https://up.example.com/%d","resourceUrl":"https://cdn.example.com/%d","parameters":[{"name":"key","value":"k%d"}]}`,
			i, i, i))
	}
	return fmt.Sprintf(
		`{"data":{"stagedUploadsCreate":{"stagedTargets":[%s],"userErrors":[]}}}`,
		strings.Join(targets, ","))
}

func createdMediaJSON(n, offset int) string {
	media := make([]string, 0, n)
	for i := 0; i < n; i++ {
		media = append(media, fmt.Sprintf(
			`{"id":"gid://media/%d","status":"READY","image":{"url":"https://cdn.example.com/m%d.png"}}`,
			offset+i, offset+i))
	}
	return fmt.Sprintf(
		`{"data":{"productCreateMedia":{"media":[%s],"mediaUserErrors":[]}}}`,
		strings.Join(media, ","))
}

func TestDoSendsTokenHeader(t *testing.T) {
	srv := newGraphQLServer(t, `{"data":{"node":{"id":"gid://media/1","status":"READY"}}}`)
	c := newTestClient(srv)

	status, err := c.GetMediaStatus(context.Background(), "gid://media/1")
	require.NoError(t, err)
	assert.Equal(t, MediaStatusReady, status)
	require.Len(t, srv.calls, 1)
	assert.Equal(t, "tok-123", srv.calls[0].token)
}

func TestDoStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		want      *apperror.Error
		retryable bool
	}{
		{status: http.StatusTooManyRequests, want: apperror.ErrThrottled, retryable: true},
		{status: http.StatusUnauthorized, want: apperror.ErrUnauthorized},
		{status: http.StatusForbidden, want: apperror.ErrUnauthorized},
		{status: http.StatusBadGateway, want: apperror.ErrPlatformUnavailable, retryable: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			srv := newGraphQLServer(t)
			srv.status = tt.status
			c := newTestClient(srv)

			_, err := c.GetMediaStatus(context.Background(), "gid://media/1")
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.want))
			assert.Equal(t, tt.retryable, apperror.Retryable(err))
		})
	}
}

func TestDoThrottledExtensionCode(t *testing.T) {
	srv := newGraphQLServer(t,
		`{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`)
	c := newTestClient(srv)

	_, err := c.GetMediaStatus(context.Background(), "gid://media/1")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrThrottled))
	assert.True(t, apperror.Retryable(err))
}

func TestDoGraphQLErrorIsPlain(t *testing.T) {
	srv := newGraphQLServer(t,
		`{"errors":[{"message":"Field 'nope' doesn't exist","extensions":{"code":"undefinedField"}}]}`)
	c := newTestClient(srv)

	_, err := c.GetMediaStatus(context.Background(), "gid://media/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graphql errors")
	assert.False(t, apperror.Is(err, apperror.ErrThrottled))
}

func TestCreateStagedUploadsBatches(t *testing.T) {
	// 60 inputs must split into 25 + 25 + 10.
	srv := newGraphQLServer(t,
		stagedTargetsJSON(25), stagedTargetsJSON(25), stagedTargetsJSON(10))
	c := newTestClient(srv)

	inputs := make([]StagedUploadInput, 60)
	for i := range inputs {
		inputs[i] = StagedUploadInput{
			Filename: fmt.Sprintf("img-%d.png", i),
			MimeType: "image/png",
		}
	}

	targets, err := c.CreateStagedUploads(context.Background(), inputs)
	require.NoError(t, err)
	assert.Len(t, targets, 60)

	require.Len(t, srv.calls, 3)
	sizes := make([]int, 0, 3)
	for _, call := range srv.calls {
		batch := call.variables["input"].([]any)
		sizes = append(sizes, len(batch))

		first := batch[0].(map[string]any)
		assert.Equal(t, "IMAGE", first["resource"])
		assert.Equal(t, "POST", first["httpMethod"])
	}
	assert.Equal(t, []int{25, 25, 10}, sizes)

	assert.Equal(t, "https://up.example.com/0", targets[0].URL)
	require.Len(t, targets[0].Parameters, 1)
	assert.Equal(t, StagedParameter{Name: "key", Value: "k0"}, targets[0].Parameters[0])
}

func TestCreateStagedUploadsShortTargetCount(t *testing.T) {
	srv := newGraphQLServer(t, stagedTargetsJSON(2))
	c := newTestClient(srv)

	_, err := c.CreateStagedUploads(context.Background(), []StagedUploadInput{
		{Filename: "a.png", MimeType: "image/png"},
		{Filename: "b.png", MimeType: "image/png"},
		{Filename: "c.png", MimeType: "image/png"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 2 targets, want 3")
}

func TestCreateProductMediaBatches(t *testing.T) {
	// 23 media must split into 10 + 10 + 3.
	srv := newGraphQLServer(t,
		createdMediaJSON(10, 0), createdMediaJSON(10, 10), createdMediaJSON(3, 20))
	c := newTestClient(srv)

	media := make([]NewMedia, 23)
	for i := range media {
		media[i] = NewMedia{ResourceURL: fmt.Sprintf("https://cdn.example.com/%d", i), Alt: "alt"}
	}

	created, err := c.CreateProductMedia(context.Background(), "gid://product/1", media)
	require.NoError(t, err)
	require.Len(t, created, 23)
	assert.Equal(t, "gid://media/0", created[0].ID)
	assert.Equal(t, "gid://media/22", created[22].ID)
	assert.Equal(t, MediaStatusReady, created[0].Status)

	require.Len(t, srv.calls, 3)
	sizes := make([]int, 0, 3)
	for _, call := range srv.calls {
		assert.Equal(t, "gid://product/1", call.variables["productId"])
		batch := call.variables["media"].([]any)
		sizes = append(sizes, len(batch))

		first := batch[0].(map[string]any)
		assert.Equal(t, "IMAGE", first["mediaContentType"])
		assert.Contains(t, first, "originalSource")
	}
	assert.Equal(t, []int{10, 10, 3}, sizes)
}

func TestCreateProductMediaUserErrors(t *testing.T) {
	srv := newGraphQLServer(t,
		`{"data":{"productCreateMedia":{"media":[],"mediaUserErrors":[{"field":["media"],"message":"invalid source"}]}}}`)
	c := newTestClient(srv)

	_, err := c.CreateProductMedia(context.Background(), "gid://product/1", []NewMedia{
		{ResourceURL: "https://cdn.example.com/x"},
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrUserErrors))
	assert.False(t, apperror.Retryable(err))
	assert.Contains(t, err.Error(), "invalid source")
}

func TestReorderProductMediaPositionsAreStrings(t *testing.T) {
	srv := newGraphQLServer(t,
		`{"data":{"productReorderMedia":{"mediaUserErrors":[]}}}`)
	c := newTestClient(srv)

	err := c.ReorderProductMedia(context.Background(), "gid://product/1", []MediaMove{
		{MediaID: "gid://media/5", Position: 0},
		{MediaID: "gid://media/6", Position: 3},
	})
	require.NoError(t, err)

	require.Len(t, srv.calls, 1)
	moves := srv.calls[0].variables["moves"].([]any)
	require.Len(t, moves, 2)
	first := moves[0].(map[string]any)
	assert.Equal(t, "gid://media/5", first["id"])
	assert.Equal(t, "0", first["newPosition"], "positions go over the wire as strings")
}

func TestReorderProductMediaEmptyIsNoCall(t *testing.T) {
	srv := newGraphQLServer(t)
	c := newTestClient(srv)

	require.NoError(t, c.ReorderProductMedia(context.Background(), "gid://product/1", nil))
	assert.Empty(t, srv.calls)
}

func TestAssignVariantMediaShape(t *testing.T) {
	srv := newGraphQLServer(t,
		`{"data":{"productVariantAppendMedia":{"mediaUserErrors":[]}}}`)
	c := newTestClient(srv)

	err := c.AssignVariantMedia(context.Background(), "gid://product/1",
		[]string{"gid://variant/1", "gid://variant/2"}, "gid://media/9")
	require.NoError(t, err)

	require.Len(t, srv.calls, 1)
	vm := srv.calls[0].variables["variantMedia"].([]any)
	require.Len(t, vm, 2)
	first := vm[0].(map[string]any)
	assert.Equal(t, "gid://variant/1", first["variantId"])
	assert.Equal(t, []any{"gid://media/9"}, first["mediaIds"])
}

func TestGetMediaStatusMissingNode(t *testing.T) {
	srv := newGraphQLServer(t, `{"data":{"node":null}}`)
	c := newTestClient(srv)

	_, err := c.GetMediaStatus(context.Background(), "gid://media/404")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestUploadToTargetMultipartOrder(t *testing.T) {
	var gotOrder []string
	var gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		require.NoError(t, err)
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			if part.FileName() != "" {
				gotOrder = append(gotOrder, "file:"+part.FormName())
				gotFile = part.FileName()
				continue
			}
			gotOrder = append(gotOrder, part.FormName())
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: "https://unused", APIVersion: "v", Shop: "s", Token: "t"})
	target := StagedTarget{
		URL: srv.URL,
		Parameters: []StagedParameter{
			{Name: "policy", Value: "p"},
			{Name: "signature", Value: "s"},
			{Name: "key", Value: "k"},
		},
	}

	err := c.UploadToTarget(context.Background(), target, "photo-stamped.png", strings.NewReader("payload"))
	require.NoError(t, err)

	// Platform order, parameters before the file part.
	assert.Equal(t, []string{"policy", "signature", "key", "file:file"}, gotOrder)
	assert.Equal(t, "photo-stamped.png", gotFile)
}

func TestUploadToTargetServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: "https://unused", APIVersion: "v", Shop: "s", Token: "t"})
	err := c.UploadToTarget(context.Background(), StagedTarget{URL: srv.URL}, "x.png", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.ErrPlatformUnavailable))
}

func TestNewClientEndpoint(t *testing.T) {
	c := NewClient(ClientConfig{
		BaseURL:    "https://%s/admin/api",
		APIVersion: "2024-07",
		Shop:       "acme.example.com",
		Token:      "t",
	})
	assert.Equal(t, "https://acme.example.com/admin/api/2024-07/graphql.json", c.endpoint)
}
