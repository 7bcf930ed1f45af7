package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/taskhive/taskhive/internal/models"
)

// Indexer mirrors task mutations into the search index. All methods are
// best effort; callers log failures and move on. A nil Indexer is a no-op so
// the service runs with search disabled when no cluster is configured.
type Indexer struct {
	ES    *elasticsearch.Client
	Index string
}

func (ix *Indexer) IndexTask(ctx context.Context, task *models.Task) error {
	if ix == nil || ix.ES == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(task); err != nil {
		return fmt.Errorf("encode task document: %w", err)
	}

	res, err := ix.ES.Index(
		ix.Index,
		&buf,
		ix.ES.Index.WithDocumentID(task.ID.String()),
		ix.ES.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("index task: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index task: %s", res.Status())
	}
	return nil
}

func (ix *Indexer) DeleteTask(ctx context.Context, taskID string) error {
	if ix == nil || ix.ES == nil {
		return nil
	}

	res, err := ix.ES.Delete(
		ix.Index,
		taskID,
		ix.ES.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("delete task document: %w", err)
	}
	defer res.Body.Close()
	// 404 means the document was never indexed; deletion stays idempotent.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete task document: %s", res.Status())
	}
	return nil
}
