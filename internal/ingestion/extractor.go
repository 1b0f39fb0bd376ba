package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cyderes/dummy-etl/internal/models"
)

const (
	CollectionUsers = "users"
	CollectionPosts = "posts"
)

var (
	// ErrFetch matches every FetchError.
	ErrFetch = errors.New("fetch failure")
)

// FetchError reports a collection that could not be extracted.
type FetchError struct {
	Collection string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch %s data: API returned status %d", e.Collection, e.StatusCode)
	}
	return fmt.Sprintf("failed to fetch %s data: %v", e.Collection, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// Extractor downloads whole collections from the remote API.
type Extractor struct {
	baseURL    string
	httpClient *http.Client
}

// NewExtractor creates an Extractor for baseURL using httpClient.
func NewExtractor(baseURL string, httpClient *http.Client) *Extractor {
	return &Extractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// FetchCollection requests <base>/<collection>?limit=0 and returns every record of the
// body's <collection> array. Numbers are kept as json.Number.
func (e *Extractor) FetchCollection(ctx context.Context, collection string) ([]models.Record, error) {
	endpoint, err := url.Parse(e.baseURL + "/" + collection)
	if err != nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("invalid endpoint: %w", err)}
	}
	query := endpoint.Query()
	query.Set("limit", "0")
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Collection: collection, StatusCode: resp.StatusCode}
	}

	var body map[string]json.RawMessage
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&body); err != nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	raw, ok := body[collection]
	if !ok {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("response has no %q field", collection)}
	}

	var records []models.Record
	recordsDecoder := json.NewDecoder(bytes.NewReader(raw))
	recordsDecoder.UseNumber()
	if err := recordsDecoder.Decode(&records); err != nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("failed to unmarshal %s: %w", collection, err)}
	}
	if records == nil {
		return nil, &FetchError{Collection: collection, Err: fmt.Errorf("response field %q is not an array", collection)}
	}

	return records, nil
}
