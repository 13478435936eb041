package atlantic

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/saya/x/prover"
)

func TestHTTPClient_SubmitProofGeneration(t *testing.T) {
	var submitted bool
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/is-alive":
			require.Equal(t, http.MethodGet, req.Method)
			return jsonResponse(http.StatusOK, `{"alive":true}`), nil
		case "/proof-generation":
			require.Equal(t, http.MethodPost, req.Method)
			require.Equal(t, "secret", req.URL.Query().Get("apiKey"))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			require.Equal(t, "dynamic", req.FormValue("layout"))
			require.Equal(t, "starkware_sharp", req.FormValue("prover"))

			f, _, err := req.FormFile("pieFile")
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			require.Equal(t, []byte("pie-bytes"), data)
			submitted = true
			return jsonResponse(http.StatusOK, `{"sharpQueryId":"q-1"}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})

	client := newTestClient(t, mock, "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, err := client.SubmitProofGeneration(ctx, []byte("pie-bytes"))
	require.NoError(t, err)
	require.Equal(t, "q-1", id)
	require.True(t, submitted)
}

func TestHTTPClient_SubmitNotAlive(t *testing.T) {
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "/is-alive", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"alive":false}`), nil
	})

	client := newTestClient(t, mock, "")
	_, err := client.SubmitProofGeneration(context.Background(), []byte("pie"))
	require.ErrorIs(t, err, prover.ErrServiceUnavailable)
	require.True(t, prover.IsTransient(err))
}

func TestHTTPClient_SubmitLayoutBridgeQuery(t *testing.T) {
	program := filepath.Join(t.TempDir(), "layout_bridge.json")
	require.NoError(t, os.WriteFile(program, []byte(`{"program":"bridge"}`), 0o600))

	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/is-alive":
			return jsonResponse(http.StatusOK, `{"alive":true}`), nil
		case "/l2/atlantic-query":
			require.Equal(t, "secret", req.URL.Query().Get("apiKey"))
			require.NoError(t, req.ParseMultipartForm(1<<20))
			require.Equal(t, "false", req.FormValue("mockFactHash"))

			f, _, err := req.FormFile("programFile")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			require.Equal(t, `{"program":"bridge"}`, string(data))

			f, _, err = req.FormFile("inputFile")
			require.NoError(t, err)
			data, _ = io.ReadAll(f)
			require.JSONEq(t, `{"proof":{"a":1}}`, string(data))
			return jsonResponse(http.StatusOK, `{"sharpQueryId":"q-2"}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})

	client := newTestClient(t, mock, program)
	id, err := client.SubmitLayoutBridgeQuery(context.Background(), `{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, "q-2", id)
}

func TestHTTPClient_SubmitLayoutBridgeWithoutProgram(t *testing.T) {
	client := newTestClient(t, roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("no request expected")
	}), "")
	_, err := client.SubmitLayoutBridgeQuery(context.Background(), `{}`)
	require.ErrorIs(t, err, prover.ErrServiceError)
}

func TestHTTPClient_CheckStatus(t *testing.T) {
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/is-alive":
			return jsonResponse(http.StatusOK, `{"alive":true}`), nil
		case "/sharp-query/q-9/jobs":
			return jsonResponse(http.StatusOK,
				`{"jobs":[{"id":"a","status":"COMPLETED"},{"id":"b","status":"COMPLETED"}]}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})

	client := newTestClient(t, mock, "")
	status, err := client.CheckStatus(context.Background(), "q-9")
	require.NoError(t, err)
	require.Len(t, status.Jobs, 2)
	require.True(t, status.Complete())
}

func TestHTTPClient_CheckStatusEmptyIsIncomplete(t *testing.T) {
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/is-alive" {
			return jsonResponse(http.StatusOK, `{"alive":true}`), nil
		}
		return jsonResponse(http.StatusOK, `{"jobs":[]}`), nil
	})

	client := newTestClient(t, mock, "")
	status, err := client.CheckStatus(context.Background(), "q-9")
	require.NoError(t, err)
	require.False(t, status.Complete())
}

func TestHTTPClient_FetchProof(t *testing.T) {
	mock := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		require.Equal(t, "proofs.example.com", req.URL.Host)
		require.Equal(t, "/sharp_queries/query_q-3/proof.json", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"proof":"data"}`), nil
	})

	client := newTestClient(t, mock, "")
	proof, err := client.FetchProof(context.Background(), "q-3")
	require.NoError(t, err)
	require.Equal(t, `{"proof":"data"}`, proof)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, prover.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, prover.ErrServiceUnavailable},
		{"server error", http.StatusInternalServerError, prover.ErrServiceUnavailable},
		{"bad request", http.StatusBadRequest, prover.ErrServiceError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := roundTripFunc(func(*http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: tt.status,
					Status:     http.StatusText(tt.status),
					Body:       io.NopCloser(bytes.NewReader([]byte("boom"))),
					Header:     make(http.Header),
				}, nil
			})
			client := newTestClient(t, mock, "")
			_, err := client.FetchProof(context.Background(), "q")
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClient_TransportErrorIsTransient(t *testing.T) {
	mock := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	client := newTestClient(t, mock, "")
	_, err := client.CheckStatus(context.Background(), "q")
	require.ErrorIs(t, err, prover.ErrServiceUnavailable)
}

func TestHTTPClient_MalformedBody(t *testing.T) {
	mock := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `not json`), nil
	})
	client := newTestClient(t, mock, "")
	_, err := client.IsAlive(context.Background())
	require.ErrorIs(t, err, prover.ErrServiceError)
}

func TestRedactDropsAPIKey(t *testing.T) {
	require.Equal(t, "http://example.com/proof-generation", redact("http://example.com/proof-generation?apiKey=secret"))
}

func newTestClient(t *testing.T, rt http.RoundTripper, program string) *HTTPClient {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = "http://example.com"
	cfg.ProofBaseURL = "http://proofs.example.com/sharp_queries"
	cfg.APIKey = "secret"
	cfg.LayoutBridgeProgram = program
	client, err := NewHTTPClient(cfg, &http.Client{Transport: rt}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
