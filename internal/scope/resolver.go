// Package scope expands a job's scope definition into the concrete list
// of product IDs the job will touch.
package scope

import (
	"context"
	"fmt"

	"github.com/brandstamp/brandstamp/internal/catalog"
	"github.com/brandstamp/brandstamp/internal/db"
	"github.com/brandstamp/brandstamp/internal/logger"
)

type Resolver struct {
	api        catalog.API
	maxProduct int
}

func NewResolver(api catalog.API, maxProduct int) *Resolver {
	return &Resolver{api: api, maxProduct: maxProduct}
}

// Resolve returns the product IDs covered by the scope. Manual scopes are
// returned verbatim without existence checks or capping; the caller chose
// every entry, and missing products surface later as per-product failures.
// Listing scopes paginate through the catalog and truncate at the product
// cap. A failed page aborts the whole resolution so a partial listing is
// never mistaken for the full scope.
func (r *Resolver) Resolve(ctx context.Context, scopeType db.ScopeType, scopeValue []string) ([]string, error) {
	switch scopeType {
	case db.ScopeManual:
		return scopeValue, nil

	case db.ScopeAll:
		return r.paginate(ctx, func(ctx context.Context, cursor string) (catalog.Page, error) {
			return r.api.ListProductIDs(ctx, cursor)
		})

	case db.ScopeCollection:
		if len(scopeValue) != 1 {
			return nil, fmt.Errorf("collection scope needs exactly one collection id, got %d", len(scopeValue))
		}
		collectionID := scopeValue[0]
		return r.paginate(ctx, func(ctx context.Context, cursor string) (catalog.Page, error) {
			return r.api.ListCollectionProductIDs(ctx, collectionID, cursor)
		})

	default:
		return nil, fmt.Errorf("unknown scope type %q", scopeType)
	}
}

func (r *Resolver) paginate(ctx context.Context, list func(context.Context, string) (catalog.Page, error)) ([]string, error) {
	log := logger.FromContext(ctx)

	var ids []string
	cursor := ""
	for {
		page, err := list(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("list products page: %w", err)
		}

		for _, id := range page.IDs {
			if len(ids) >= r.maxProduct {
				log.Warn("scope truncated at product cap", "cap", r.maxProduct)
				return ids, nil
			}
			ids = append(ids, id)
		}

		if !page.HasNext || page.Cursor == "" {
			return ids, nil
		}
		cursor = page.Cursor
	}
}
