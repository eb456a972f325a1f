package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/mstoica/storefront/internal/logging"
	"github.com/mstoica/storefront/internal/models"
)

// OrderDoc is the order projection kept in the search index. Only the
// fields an operator searches on; the relational store stays the
// source of truth.
type OrderDoc struct {
	ID            string    `json:"id"`
	OrderNumber   string    `json:"order_number"`
	UserID        uint      `json:"user_id"`
	Status        string    `json:"status"`
	TotalPrice    float64   `json:"total_price"`
	TotalQuantity uint      `json:"total_quantity"`
	Observation   string    `json:"observation"`
	CreatedAt     time.Time `json:"created_at"`
}

type OrderIndex struct {
	ES    *elasticsearch.Client
	Index string
}

func docFromOrder(o *models.Order) OrderDoc {
	return OrderDoc{
		ID:            o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalPrice:    o.TotalPrice,
		TotalQuantity: o.TotalQuantity,
		Observation:   o.Observation,
		CreatedAt:     o.CreatedAt,
	}
}

// IndexOrder writes (or rewrites) the order's projection. Best-effort:
// a failed index write is logged and never surfaces to the caller, the
// same policy as notifications.
func (x *OrderIndex) IndexOrder(ctx context.Context, o *models.Order) {
	doc := docFromOrder(o)
	data, err := json.Marshal(doc)
	if err != nil {
		logging.FromContext(ctx).Error("order index marshal failed", "order_id", doc.ID, "error", err)
		return
	}

	idxCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	res, err := x.ES.Index(
		x.Index,
		bytes.NewReader(data),
		x.ES.Index.WithContext(idxCtx),
		x.ES.Index.WithDocumentID(doc.ID),
	)
	if err != nil {
		logging.FromContext(ctx).Error("order index write failed", "order_id", doc.ID, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		logging.FromContext(ctx).Error("order index write rejected", "order_id", doc.ID, "status", res.Status())
	}
}

// Search runs an operator keyword query over the order index, with an
// optional status filter.
func (x *OrderIndex) Search(ctx context.Context, query, status string, from, size int) (int64, []OrderDoc, error) {
	must := []map[string]interface{}{}
	if query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"order_number^2", "observation"},
				"fuzziness": "AUTO",
			},
		})
	}

	boolQuery := map[string]interface{}{"must": must}
	if status != "" {
		boolQuery["filter"] = []map[string]interface{}{
			{"term": map[string]interface{}{"status": status}},
		}
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []map[string]interface{}{{"created_at": map[string]string{"order": "desc"}}},
		"from":  from,
		"size":  size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, fmt.Errorf("encode search body: %w", err)
	}

	res, err := x.ES.Search(
		x.ES.Search.WithContext(ctx),
		x.ES.Search.WithIndex(x.Index),
		x.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("order search: %w", err)
	}

	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, fmt.Errorf("order search: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source OrderDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	docs := make([]OrderDoc, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		docs[i] = hit.Source
	}
	return r.Hits.Total.Value, docs, nil
}
