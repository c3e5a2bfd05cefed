package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RESTSource fetches records from a JSON endpoint that returns an array of
// objects. The field named by idField becomes each record's external id.
type RESTSource struct {
	baseURL string
	idField string
	client  *http.Client
}

func NewRESTSource(setting *Setting) *RESTSource {
	idField := setting.Mapping["__id"]
	if idField == "" {
		idField = "id"
	}
	return &RESTSource{
		baseURL: setting.SourceURL,
		idField: idField,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RESTSource) Fetch(ctx context.Context, params map[string]string) ([]Record, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, Permanent("rest.fetch", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, Permanent("rest.fetch", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Transient("rest.fetch", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, Transient("rest.fetch", fmt.Errorf("source returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, Permanent("rest.fetch", fmt.Errorf("source returned %d", resp.StatusCode))
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, Permanent("rest.fetch", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		extID := ""
		if v, ok := row[s.idField]; ok {
			extID = fmt.Sprintf("%v", v)
		}
		records = append(records, Record{ExternalID: extID, Data: row})
	}
	return records, nil
}

func (s *RESTSource) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
