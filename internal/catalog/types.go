package catalog

// ProductImage is one image attached to a product, with everything the
// pipeline needs to replace it and put it back.
type ProductImage struct {
	MediaID    string
	URL        string
	Position   int
	Alt        string
	VariantIDs []string
}

type Product struct {
	ID     string
	Title  string
	Images []ProductImage
}

// Page is one page of a cursor-paginated product listing.
type Page struct {
	IDs     []string
	Cursor  string
	HasNext bool
}

// StagedUploadInput describes one upload target request.
type StagedUploadInput struct {
	Filename string
	MimeType string
}

// StagedParameter is a single multipart field the platform requires.
// Parameters must be written in the order the platform returned them,
// before the file part.
type StagedParameter struct {
	Name  string
	Value string
}

// StagedTarget is a short-lived upload destination issued by the platform.
type StagedTarget struct {
	URL         string
	ResourceURL string
	Parameters  []StagedParameter
}

// Media is a product media object created from an uploaded resource.
type Media struct {
	ID     string
	URL    string
	Status MediaStatus
}

type MediaStatus string

const (
	MediaStatusUploaded   MediaStatus = "UPLOADED"
	MediaStatusProcessing MediaStatus = "PROCESSING"
	MediaStatusReady      MediaStatus = "READY"
	MediaStatusFailed     MediaStatus = "FAILED"
)

// NewMedia describes a media creation request from a staged resource.
type NewMedia struct {
	ResourceURL string
	Alt         string
}

// MediaMove repositions a media within a product's gallery.
type MediaMove struct {
	MediaID  string
	Position int
}
