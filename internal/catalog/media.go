package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/brandstamp/brandstamp/internal/apperror"
	"github.com/brandstamp/brandstamp/internal/logger"
)

const stagedUploadsMutation = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

const productCreateMediaMutation = `
mutation productCreateMedia($productId: ID!, $media: [CreateMediaInput!]!) {
  productCreateMedia(productId: $productId, media: $media) {
    media {
      ... on MediaImage {
        id
        status
        image { url }
      }
    }
    mediaUserErrors { field message }
  }
}`

const productDeleteMediaMutation = `
mutation productDeleteMedia($productId: ID!, $mediaIds: [ID!]!) {
  productDeleteMedia(productId: $productId, mediaIds: $mediaIds) {
    deletedMediaIds
    mediaUserErrors { field message }
  }
}`

const productReorderMediaMutation = `
mutation productReorderMedia($id: ID!, $moves: [MoveInput!]!) {
  productReorderMedia(id: $id, moves: $moves) {
    mediaUserErrors { field message }
  }
}`

const variantAppendMediaMutation = `
mutation productVariantAppendMedia($productId: ID!, $variantMedia: [ProductVariantAppendMediaInput!]!) {
  productVariantAppendMedia(productId: $productId, variantMedia: $variantMedia) {
    mediaUserErrors { field message }
  }
}`

const mediaStatusQuery = `
query mediaStatus($id: ID!) {
  node(id: $id) {
    ... on MediaImage { id status }
  }
}`

type stagedTargetResponse struct {
	URL         string `json:"url"`
	ResourceURL string `json:"resourceUrl"`
	Parameters  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"parameters"`
}

// CreateStagedUploads requests upload targets, batching requests to the
// platform's per-call limit. Targets come back in input order.
func (c *Client) CreateStagedUploads(ctx context.Context, inputs []StagedUploadInput) ([]StagedTarget, error) {
	targets := make([]StagedTarget, 0, len(inputs))

	for start := 0; start < len(inputs); start += stagedUploadBatchLimit {
		end := start + stagedUploadBatchLimit
		if end > len(inputs) {
			end = len(inputs)
		}

		batch := make([]map[string]any, 0, end-start)
		for _, in := range inputs[start:end] {
			batch = append(batch, map[string]any{
				"filename":   in.Filename,
				"mimeType":   in.MimeType,
				"resource":   "IMAGE",
				"httpMethod": "POST",
			})
		}

		var out struct {
			StagedUploadsCreate struct {
				StagedTargets []stagedTargetResponse `json:"stagedTargets"`
				UserErrors    []userError            `json:"userErrors"`
			} `json:"stagedUploadsCreate"`
		}
		if err := c.do(ctx, "stagedUploadsCreate", stagedUploadsMutation, map[string]any{"input": batch}, &out); err != nil {
			return nil, err
		}
		if err := userErrorsToErr("stagedUploadsCreate", out.StagedUploadsCreate.UserErrors); err != nil {
			return nil, err
		}
		if got, want := len(out.StagedUploadsCreate.StagedTargets), end-start; got != want {
			return nil, fmt.Errorf("stagedUploadsCreate: got %d targets, want %d", got, want)
		}

		for _, t := range out.StagedUploadsCreate.StagedTargets {
			target := StagedTarget{URL: t.URL, ResourceURL: t.ResourceURL}
			for _, p := range t.Parameters {
				target.Parameters = append(target.Parameters, StagedParameter{Name: p.Name, Value: p.Value})
			}
			targets = append(targets, target)
		}
	}
	return targets, nil
}

// UploadToTarget streams the watermarked image to a staged target as
// multipart form data. The platform rejects uploads whose form fields are
// out of order or follow the file part, so parameters go first, verbatim.
func (c *Client) UploadToTarget(ctx context.Context, target StagedTarget, filename string, body io.Reader) error {
	log := logger.FromContext(ctx)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range target.Parameters {
		if err := writer.WriteField(p.Name, p.Value); err != nil {
			return fmt.Errorf("write upload field %s: %w", p.Name, err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create upload file part: %w", err)
	}
	n, err := io.Copy(part, body)
	if err != nil {
		return fmt.Errorf("copy upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return apperror.Wrap(fmt.Errorf("staged upload: %w", err), apperror.ErrPlatformUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return apperror.Wrap(fmt.Errorf("staged upload: status %d", resp.StatusCode), apperror.ErrPlatformUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("staged upload: unexpected status %d", resp.StatusCode)
	}

	log.Debug("staged upload completed", "filename", filename, "bytes", n)
	return nil
}

// CreateProductMedia attaches staged resources as product media, batching
// to the platform's per-call limit. Media come back in input order.
func (c *Client) CreateProductMedia(ctx context.Context, productID string, media []NewMedia) ([]Media, error) {
	created := make([]Media, 0, len(media))

	for start := 0; start < len(media); start += mediaCreateBatchLimit {
		end := start + mediaCreateBatchLimit
		if end > len(media) {
			end = len(media)
		}

		batch := make([]map[string]any, 0, end-start)
		for _, m := range media[start:end] {
			batch = append(batch, map[string]any{
				"originalSource":   m.ResourceURL,
				"alt":              m.Alt,
				"mediaContentType": "IMAGE",
			})
		}

		var out struct {
			ProductCreateMedia struct {
				Media []struct {
					ID     string      `json:"id"`
					Status MediaStatus `json:"status"`
					Image  *struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"media"`
				MediaUserErrors []userError `json:"mediaUserErrors"`
			} `json:"productCreateMedia"`
		}
		variables := map[string]any{"productId": productID, "media": batch}
		if err := c.do(ctx, "productCreateMedia", productCreateMediaMutation, variables, &out); err != nil {
			return nil, err
		}
		if err := userErrorsToErr("productCreateMedia", out.ProductCreateMedia.MediaUserErrors); err != nil {
			return nil, err
		}
		if got, want := len(out.ProductCreateMedia.Media), end-start; got != want {
			return nil, fmt.Errorf("productCreateMedia: got %d media, want %d", got, want)
		}

		for _, m := range out.ProductCreateMedia.Media {
			result := Media{ID: m.ID, Status: m.Status}
			if m.Image != nil {
				result.URL = m.Image.URL
			}
			created = append(created, result)
		}
	}
	return created, nil
}

// DeleteProductMedia removes media from a product. The underlying files
// are gone once the platform processes the deletion.
func (c *Client) DeleteProductMedia(ctx context.Context, productID string, mediaIDs []string) error {
	var out struct {
		ProductDeleteMedia struct {
			DeletedMediaIDs []string    `json:"deletedMediaIds"`
			MediaUserErrors []userError `json:"mediaUserErrors"`
		} `json:"productDeleteMedia"`
	}
	variables := map[string]any{"productId": productID, "mediaIds": mediaIDs}
	if err := c.do(ctx, "productDeleteMedia", productDeleteMediaMutation, variables, &out); err != nil {
		return err
	}
	return userErrorsToErr("productDeleteMedia", out.ProductDeleteMedia.MediaUserErrors)
}

// ReorderProductMedia moves media to explicit gallery positions.
func (c *Client) ReorderProductMedia(ctx context.Context, productID string, moves []MediaMove) error {
	if len(moves) == 0 {
		return nil
	}

	batch := make([]map[string]any, 0, len(moves))
	for _, m := range moves {
		batch = append(batch, map[string]any{
			"id":          m.MediaID,
			"newPosition": fmt.Sprintf("%d", m.Position),
		})
	}

	var out struct {
		ProductReorderMedia struct {
			MediaUserErrors []userError `json:"mediaUserErrors"`
		} `json:"productReorderMedia"`
	}
	variables := map[string]any{"id": productID, "moves": batch}
	if err := c.do(ctx, "productReorderMedia", productReorderMediaMutation, variables, &out); err != nil {
		return err
	}
	return userErrorsToErr("productReorderMedia", out.ProductReorderMedia.MediaUserErrors)
}

// AssignVariantMedia points the given variants at a media.
func (c *Client) AssignVariantMedia(ctx context.Context, productID string, variantIDs []string, mediaID string) error {
	if len(variantIDs) == 0 {
		return nil
	}

	variantMedia := make([]map[string]any, 0, len(variantIDs))
	for _, variantID := range variantIDs {
		variantMedia = append(variantMedia, map[string]any{
			"variantId": variantID,
			"mediaIds":  []string{mediaID},
		})
	}

	var out struct {
		ProductVariantAppendMedia struct {
			MediaUserErrors []userError `json:"mediaUserErrors"`
		} `json:"productVariantAppendMedia"`
	}
	variables := map[string]any{"productId": productID, "variantMedia": variantMedia}
	if err := c.do(ctx, "productVariantAppendMedia", variantAppendMediaMutation, variables, &out); err != nil {
		return err
	}
	return userErrorsToErr("productVariantAppendMedia", out.ProductVariantAppendMedia.MediaUserErrors)
}

// GetMediaStatus reads the processing status of one media node.
func (c *Client) GetMediaStatus(ctx context.Context, mediaID string) (MediaStatus, error) {
	var out struct {
		Node *struct {
			ID     string      `json:"id"`
			Status MediaStatus `json:"status"`
		} `json:"node"`
	}
	if err := c.do(ctx, "mediaStatus", mediaStatusQuery, map[string]any{"id": mediaID}, &out); err != nil {
		return "", err
	}
	if out.Node == nil {
		return "", apperror.Wrap(fmt.Errorf("media %s", mediaID), apperror.ErrNotFound)
	}
	return out.Node.Status, nil
}
