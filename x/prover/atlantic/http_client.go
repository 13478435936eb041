// Package atlantic implements prover.Client over the Herodotus Atlantic REST API.
package atlantic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"

	"github.com/rs/zerolog"

	"github.com/compose-network/saya/x/prover"
)

// Ensure HTTPClient satisfies prover.Client at compile time.
var _ prover.Client = (*HTTPClient)(nil)

const maxErrorBody = 4096

// HTTPClient talks to Atlantic. Every submission is preceded by a liveness probe.
type HTTPClient struct {
	cfg          Config
	baseURL      *url.URL
	proofBaseURL *url.URL
	bridge       []byte
	httpClient   *http.Client
	log          zerolog.Logger
}

// NewHTTPClient constructs an Atlantic client. The layout bridge program is read
// from cfg.LayoutBridgeProgram when set.
func NewHTTPClient(cfg Config, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prover base URL: %w", err)
	}
	proofBase, err := url.Parse(cfg.ProofBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proof base URL: %w", err)
	}
	def := DefaultConfig()
	if cfg.Layout == "" {
		cfg.Layout = def.Layout
	}
	if cfg.Prover == "" {
		cfg.Prover = def.Prover
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = def.Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var bridge []byte
	if cfg.LayoutBridgeProgram != "" {
		bridge, err = os.ReadFile(cfg.LayoutBridgeProgram)
		if err != nil {
			return nil, fmt.Errorf("read layout bridge program: %w", err)
		}
	}

	logger := log.With().Str("component", "atlantic-client").Logger()
	logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("proof_base_url", cfg.ProofBaseURL).
		Str("layout", cfg.Layout).
		Int("layout_bridge_bytes", len(bridge)).
		Dur("timeout", httpClient.Timeout).
		Msg("Atlantic prover client initialized")

	return &HTTPClient{
		cfg:          cfg,
		baseURL:      base,
		proofBaseURL: proofBase,
		bridge:       bridge,
		httpClient:   httpClient,
		log:          logger,
	}, nil
}

// IsAlive probes GET /is-alive.
func (c *HTTPClient) IsAlive(ctx context.Context) (bool, error) {
	var out aliveResponse
	if err := c.doJSON(ctx, http.MethodGet, c.buildURL(false, "is-alive"), nil, "", &out); err != nil {
		return false, err
	}
	return out.Alive, nil
}

// SubmitProofGeneration uploads a trace (Cairo PIE) for step-1 proving.
func (c *HTTPClient) SubmitProofGeneration(ctx context.Context, trace []byte) (prover.QueryID, error) {
	if err := c.ensureAlive(ctx); err != nil {
		return "", err
	}

	body, contentType, err := encodeMultipart(
		[]filePart{{field: "pieFile", name: "pie.zip", data: trace}},
		map[string]string{"layout": c.cfg.Layout, "prover": c.cfg.Prover},
	)
	if err != nil {
		return "", fmt.Errorf("%w: encode proof generation: %v", prover.ErrServiceError, err)
	}

	c.log.Info().
		Int("trace_bytes", len(trace)).
		Str("layout", c.cfg.Layout).
		Msg("Submitting proof generation")

	var out queryResponse
	if err := c.doJSON(ctx, http.MethodPost, c.buildURL(true, "proof-generation"), body, contentType, &out); err != nil {
		return "", err
	}
	if out.SharpQueryID == "" {
		return "", fmt.Errorf("%w: response missing sharpQueryId", prover.ErrServiceError)
	}

	c.log.Info().Str("query_id", out.SharpQueryID).Msg("Proof generation submitted")
	return out.SharpQueryID, nil
}

// SubmitLayoutBridgeQuery submits the step-1 proof as input to the layout bridge program.
func (c *HTTPClient) SubmitLayoutBridgeQuery(ctx context.Context, traceProof string) (prover.QueryID, error) {
	if len(c.bridge) == 0 {
		return "", fmt.Errorf("%w: layout bridge program not loaded", prover.ErrServiceError)
	}
	if err := c.ensureAlive(ctx); err != nil {
		return "", err
	}

	input := bridgeInput(traceProof)
	body, contentType, err := encodeMultipart(
		[]filePart{
			{field: "programFile", name: "layout_bridge.json", data: c.bridge},
			{field: "inputFile", name: "input.json", data: input},
		},
		map[string]string{"prover": c.cfg.Prover, "mockFactHash": "false"},
	)
	if err != nil {
		return "", fmt.Errorf("%w: encode atlantic query: %v", prover.ErrServiceError, err)
	}

	c.log.Info().Int("input_bytes", len(input)).Msg("Submitting layout bridge query")

	var out queryResponse
	if err := c.doJSON(ctx, http.MethodPost, c.buildURL(true, "l2", "atlantic-query"), body, contentType, &out); err != nil {
		return "", err
	}
	if out.SharpQueryID == "" {
		return "", fmt.Errorf("%w: response missing sharpQueryId", prover.ErrServiceError)
	}

	c.log.Info().Str("query_id", out.SharpQueryID).Msg("Layout bridge query submitted")
	return out.SharpQueryID, nil
}

// CheckStatus lists the sub-jobs of a query.
func (c *HTTPClient) CheckStatus(ctx context.Context, queryID prover.QueryID) (prover.JobStatus, error) {
	if queryID == "" {
		return prover.JobStatus{}, fmt.Errorf("%w: query id is required", prover.ErrServiceError)
	}
	if err := c.ensureAlive(ctx); err != nil {
		return prover.JobStatus{}, err
	}

	var out prover.JobStatus
	if err := c.doJSON(ctx, http.MethodGet, c.buildURL(false, "sharp-query", queryID, "jobs"), nil, "", &out); err != nil {
		return prover.JobStatus{}, err
	}

	c.log.Debug().
		Str("query_id", queryID).
		Int("jobs", len(out.Jobs)).
		Bool("complete", out.Complete()).
		Msg("Retrieved query status")
	return out, nil
}

// FetchProof downloads the proof produced by a completed query.
func (c *HTTPClient) FetchProof(ctx context.Context, queryID prover.QueryID) (string, error) {
	if queryID == "" {
		return "", fmt.Errorf("%w: query id is required", prover.ErrServiceError)
	}

	clone := *c.proofBaseURL
	clone.Path = path.Join(c.proofBaseURL.Path, "query_"+queryID, "proof.json")
	endpoint := clone.String()

	res, err := c.send(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read proof: %v", prover.ErrServiceUnavailable, err)
	}

	c.log.Debug().Str("query_id", queryID).Int("proof_bytes", len(body)).Msg("Fetched proof")
	return string(body), nil
}

func (c *HTTPClient) ensureAlive(ctx context.Context) error {
	alive, err := c.IsAlive(ctx)
	if err != nil {
		return err
	}
	if !alive {
		return fmt.Errorf("%w: service reports not alive", prover.ErrServiceUnavailable)
	}
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, contentType string, out any) error {
	res, err := c.send(ctx, method, endpoint, body, contentType)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response from %s: %v", prover.ErrServiceError, redact(endpoint), err)
	}
	return nil
}

// send performs the request and maps transport failures and error statuses onto prover sentinels.
// The caller closes the body on success.
func (c *HTTPClient) send(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare request: %v", prover.ErrServiceError, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.Warn().Err(err).Str("endpoint", redact(endpoint)).Msg("Prover request failed")
		return nil, fmt.Errorf("%w: %s %s: %v", prover.ErrServiceUnavailable, method, redact(endpoint), err)
	}

	if res.StatusCode < 400 {
		return res, nil
	}
	defer res.Body.Close()

	msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	c.log.Error().
		Int("status_code", res.StatusCode).
		Str("endpoint", redact(endpoint)).
		Str("response", string(msg)).
		Msg("Prover returned error response")

	return nil, fmt.Errorf("%w: prover returned %s: %s", classify(res.StatusCode), res.Status, string(msg))
}

func classify(code int) error {
	switch {
	case code == http.StatusNotFound:
		return prover.ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return prover.ErrServiceUnavailable
	default:
		return prover.ErrServiceError
	}
}

func (c *HTTPClient) buildURL(withKey bool, elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{c.baseURL.Path}, elem...)...)
	if withKey {
		q := clone.Query()
		q.Set("apiKey", c.cfg.APIKey)
		clone.RawQuery = q.Encode()
	}
	return clone.String()
}

// redact strips the query string so API keys never reach the logs.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

// bridgeInput wraps a proof as the layout bridge input object {"proof": <proof>}.
// The proof is embedded verbatim; it is itself a JSON document.
func bridgeInput(proof string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(proof) + 16)
	buf.WriteString("{\n\t\"proof\": ")
	buf.WriteString(proof)
	buf.WriteString("\n}")
	return buf.Bytes()
}

type filePart struct {
	field string
	name  string
	data  []byte
}

func encodeMultipart(files []filePart, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.data); err != nil {
			return nil, "", err
		}
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type aliveResponse struct {
	Alive bool `json:"alive"`
}

type queryResponse struct {
	SharpQueryID string `json:"sharpQueryId"`
}
