package catalog

import (
	"context"
	"fmt"

	"github.com/brandstamp/brandstamp/internal/apperror"
)

const listProductsQuery = `
query listProducts($first: Int!, $after: String) {
  products(first: $first, after: $after, sortKey: ID) {
    edges { node { id } }
    pageInfo { hasNextPage endCursor }
  }
}`

const listCollectionProductsQuery = `
query listCollectionProducts($id: ID!, $first: Int!, $after: String) {
  collection(id: $id) {
    products(first: $first, after: $after) {
      edges { node { id } }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const getProductQuery = `
query getProduct($id: ID!) {
  product(id: $id) {
    id
    title
    media(first: 250) {
      edges {
        node {
          ... on MediaImage {
            id
            image { url altText }
          }
        }
      }
    }
    variants(first: 250) {
      edges { node { id media(first: 1) { edges { node { id } } } } }
    }
  }
}`

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type idEdge struct {
	Node struct {
		ID string `json:"id"`
	} `json:"node"`
}

type productConnection struct {
	Edges    []idEdge `json:"edges"`
	PageInfo pageInfo `json:"pageInfo"`
}

// ListProductIDs returns one page of all product IDs in the shop, ordered
// by ID so pagination is stable across calls.
func (c *Client) ListProductIDs(ctx context.Context, cursor string) (Page, error) {
	variables := map[string]any{"first": c.pageSize}
	if cursor != "" {
		variables["after"] = cursor
	}

	var out struct {
		Products productConnection `json:"products"`
	}
	if err := c.do(ctx, "listProducts", listProductsQuery, variables, &out); err != nil {
		return Page{}, err
	}
	return connectionToPage(out.Products), nil
}

// ListCollectionProductIDs returns one page of product IDs belonging to a
// collection.
func (c *Client) ListCollectionProductIDs(ctx context.Context, collectionID, cursor string) (Page, error) {
	variables := map[string]any{"id": collectionID, "first": c.pageSize}
	if cursor != "" {
		variables["after"] = cursor
	}

	var out struct {
		Collection *struct {
			Products productConnection `json:"products"`
		} `json:"collection"`
	}
	if err := c.do(ctx, "listCollectionProducts", listCollectionProductsQuery, variables, &out); err != nil {
		return Page{}, err
	}
	if out.Collection == nil {
		return Page{}, apperror.Wrap(fmt.Errorf("collection %s", collectionID), apperror.ErrNotFound)
	}
	return connectionToPage(out.Collection.Products), nil
}

func connectionToPage(conn productConnection) Page {
	page := Page{
		IDs:     make([]string, 0, len(conn.Edges)),
		Cursor:  conn.PageInfo.EndCursor,
		HasNext: conn.PageInfo.HasNextPage,
	}
	for _, edge := range conn.Edges {
		page.IDs = append(page.IDs, edge.Node.ID)
	}
	return page
}

// GetProduct fetches a product with its image media and the variant
// assignments pointing at each media.
func (c *Client) GetProduct(ctx context.Context, productID string) (Product, error) {
	var out struct {
		Product *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Media struct {
				Edges []struct {
					Node struct {
						ID    string `json:"id"`
						Image *struct {
							URL     string `json:"url"`
							AltText string `json:"altText"`
						} `json:"image"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"media"`
			Variants struct {
				Edges []struct {
					Node struct {
						ID    string `json:"id"`
						Media struct {
							Edges []struct {
								Node struct {
									ID string `json:"id"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"media"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"variants"`
		} `json:"product"`
	}

	if err := c.do(ctx, "getProduct", getProductQuery, map[string]any{"id": productID}, &out); err != nil {
		return Product{}, err
	}
	if out.Product == nil {
		return Product{}, apperror.Wrap(fmt.Errorf("product %s", productID), apperror.ErrNotFound)
	}

	// Variant assignments are keyed by the media they point at so each
	// image carries the variant IDs that must be re-pointed after swap.
	variantsByMedia := make(map[string][]string)
	for _, vEdge := range out.Product.Variants.Edges {
		for _, mEdge := range vEdge.Node.Media.Edges {
			variantsByMedia[mEdge.Node.ID] = append(variantsByMedia[mEdge.Node.ID], vEdge.Node.ID)
		}
	}

	product := Product{ID: out.Product.ID, Title: out.Product.Title}
	position := 0
	for _, edge := range out.Product.Media.Edges {
		// Non-image media (video, 3D models) come back without an
		// image field and are skipped. Gallery position still counts
		// every media node so reordering stays faithful.
		if edge.Node.Image == nil {
			position++
			continue
		}
		product.Images = append(product.Images, ProductImage{
			MediaID:    edge.Node.ID,
			URL:        edge.Node.Image.URL,
			Position:   position,
			Alt:        edge.Node.Image.AltText,
			VariantIDs: variantsByMedia[edge.Node.ID],
		})
		position++
	}
	return product, nil
}
