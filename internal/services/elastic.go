package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"shoemart_back_end/internal/models"
)

// orderDocument is what goes into the index: the order plus fields the
// admin search filters on.
type orderDocument struct {
	models.Order
	VendorIDs []string `json:"vendor_ids"`
	ItemNames []string `json:"item_names"`
}

func newOrderDocument(o models.Order) orderDocument {
	doc := orderDocument{Order: o}
	seen := map[string]bool{}
	for _, it := range o.Items {
		if !seen[it.VendorID] {
			seen[it.VendorID] = true
			doc.VendorIDs = append(doc.VendorIDs, it.VendorID)
		}
		doc.ItemNames = append(doc.ItemNames, it.Name)
	}
	return doc
}

// OrderIndex mirrors orders into Elasticsearch for the operator search.
type OrderIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewOrderIndex(client *elasticsearch.Client, index string) *OrderIndex {
	if index == "" {
		index = "orders"
	}
	return &OrderIndex{client: client, index: index}
}

func (x *OrderIndex) IndexOrder(ctx context.Context, o models.Order) error {
	data, err := json.Marshal(newOrderDocument(o))
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: o.Number,
		Body:       bytes.NewReader(data),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return fmt.Errorf("index order %s: %w", o.Number, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index order %s: %s", o.Number, res.String())
	}
	return nil
}

// Search matches order numbers, phones, user ids, vendor ids, statuses and
// product names. An empty query lists the latest orders.
func (x *OrderIndex) Search(ctx context.Context, query string, limit int) ([]models.Order, error) {
	var q map[string]interface{}
	if query = strings.TrimSpace(query); query == "" {
		q = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		q = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":   query,
				"fields":  []string{"order_id^3", "customer_phone^2", "user_id", "vendor_ids", "status", "payment_status", "item_names"},
				"lenient": true,
			},
		}
	}
	body := map[string]interface{}{
		"query": q,
		"size":  limit,
		"sort":  []interface{}{map[string]interface{}{"created_at": map[string]string{"order": "desc", "unmapped_type": "date"}}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	req := esapi.SearchRequest{Index: []string{x.index}, Body: &buf}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		log.Printf("❌ Elasticsearch error: %s", raw)
		return nil, fmt.Errorf("search orders: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source orderDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	out := make([]models.Order, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out = append(out, h.Source.Order)
	}
	return out, nil
}
