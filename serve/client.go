package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

const maxErrorBody = 4096

// Client posts customer profiles to a prediction service. It does not retry.
type Client struct {
	URL  string
	HTTP *http.Client
}

// NewClient creates a client for the /predict endpoint at url.
func NewClient(url string) *Client {
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

// Predict sends in and decodes the response. Transport failures, non-2xx statuses
// and bodies without a prediction are returned as UpstreamError.
func (c *Client) Predict(ctx context.Context, in CustomerInput) (*PredictionResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, perrors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, perrors.NewUpstreamError(c.URL, 0, "", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, perrors.NewUpstreamError(c.URL, 0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, perrors.NewUpstreamError(c.URL, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, perrors.NewUpstreamError(c.URL, resp.StatusCode, errorMessage(data), nil)
	}

	var out PredictionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, perrors.NewUpstreamError(c.URL, resp.StatusCode, truncate(string(data)), err)
	}
	if out.Prediction == "" {
		return nil, perrors.NewUpstreamError(c.URL, resp.StatusCode, errorMessage(data), nil)
	}
	return &out, nil
}

// errorMessage extracts the "error" field of a JSON body, falling back to the
// raw body.
func errorMessage(data []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return truncate(string(data))
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// FormatResponse renders the prediction, its confidence and the class
// probabilities in descending order.
func FormatResponse(r *PredictionResponse) string {
	type entry struct {
		label string
		p     float64
	}
	entries := make([]entry, 0, len(r.Probabilities))
	for label, p := range r.Probabilities {
		entries = append(entries, entry{label, p})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].p != entries[j].p {
			return entries[i].p > entries[j].p
		}
		return entries[i].label < entries[j].label
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Prediction: %s\n", r.Prediction)
	fmt.Fprintf(&sb, "Confidence: %.2f\n", r.Confidence)
	sb.WriteString("Purchase probability distribution:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "  %-13s %6.2f%%\n", e.label+":", e.p*100)
	}
	return sb.String()
}
