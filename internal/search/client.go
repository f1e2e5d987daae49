package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrIndexNotFound = errors.New("index not found")

type Client struct {
	es    *elasticsearch.Client
	index string
}

func NewClient(es *elasticsearch.Client, index string) *Client {
	return &Client{es: es, index: index}
}

func (c *Client) IndexName() string {
	return c.index
}

// Index upserts doc under its application id.
func (c *Client) Index(ctx context.Context, doc Document) error {
	if doc.ApplicationID == "" {
		return errors.New("document has no application id")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: doc.ApplicationID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.ApplicationID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s: %s", doc.ApplicationID, res.Status())
	}
	return nil
}

type Results struct {
	Total int        `json:"total"`
	Took  int        `json:"took"`
	Hits  []Document `json:"hits"`
}

type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (c *Client) Search(ctx context.Context, q Query) (*Results, error) {
	q = q.Normalize()
	body, err := json.Marshal(q.Body())
	if err != nil {
		return nil, err
	}

	from, size := q.From, q.Size
	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  bytes.NewReader(body),
		From:  &from,
		Size:  &size,
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", c.index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, c.index)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", c.index, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := &Results{Total: parsed.Hits.Total.Value, Took: parsed.Took, Hits: make([]Document, 0, len(parsed.Hits.Hits))}
	for _, h := range parsed.Hits.Hits {
		out.Hits = append(out.Hits, h.Source)
	}
	return out, nil
}
