package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

type VersionStatus uint8

const (
	VersionStatusDraft VersionStatus = iota
	VersionStatusPublished
	VersionStatusArchived
)

func (s VersionStatus) String() string {
	switch s {
	case VersionStatusDraft:
		return "draft"
	case VersionStatusPublished:
		return "published"
	case VersionStatusArchived:
		return "archived"
	}
	return "unknown"
}

// ReleaseVersion is one editable unit of work for a project. At most one
// draft exists per project; a published version's content never changes.
type ReleaseVersion struct {
	Id            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ProjectSlug   string             `json:"projectSlug" bson:"projectSlug"`
	VersionNumber int                `json:"versionNumber" bson:"versionNumber"`
	Status        VersionStatus      `json:"status" bson:"status"`
	ReleaseId     string             `json:"releaseId,omitempty" bson:"releaseId,omitempty"`
	PublishedAt   int64              `json:"publishedAt,omitempty" bson:"publishedAt,omitempty"`
	PublishedBy   string             `json:"publishedBy,omitempty" bson:"publishedBy,omitempty"`
	CreatedAt     int64              `json:"createdAt" bson:"createdAt"`

	Draft DraftContent `json:"draft" bson:"draft"`
}

// DraftContent is the mutable payload of a draft version. The tile base path
// and overlay geometry are produced by the out-of-scope build pipeline.
type DraftContent struct {
	TilesBase string          `json:"tilesBase" bson:"tilesBase"`
	Tiles     *TileConfig     `json:"tiles,omitempty" bson:"tiles,omitempty"`
	Config    *ReleaseConfig  `json:"config,omitempty" bson:"config,omitempty"`
	Overlays  []Overlay       `json:"overlays" bson:"overlays"`
	Notes     string          `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Overlay struct {
	Ref           string            `json:"ref" bson:"ref"`
	LayerId       string            `json:"layerId" bson:"layerId"`
	OverlayType   string            `json:"overlayType" bson:"overlayType"`
	Geometry      string            `json:"geometry" bson:"geometry"`
	Label         map[string]string `json:"label,omitempty" bson:"label,omitempty"`
	LabelPosition []float64         `json:"labelPosition,omitempty" bson:"labelPosition,omitempty"`
	SortOrder     int               `json:"sortOrder" bson:"sortOrder"`
	// set by the geometry pipeline when extraction failed for this ref
	GeometryError string `json:"geometryError,omitempty" bson:"geometryError,omitempty"`
}

type ZoomConfig struct {
	Min     float64 `json:"min" bson:"min"`
	Max     float64 `json:"max" bson:"max"`
	Default float64 `json:"default" bson:"default"`
}

type ReleaseConfig struct {
	DefaultViewBox   string     `json:"defaultViewBox" bson:"defaultViewBox"`
	DefaultZoom      ZoomConfig `json:"defaultZoom" bson:"defaultZoom"`
	DefaultLocale    string     `json:"defaultLocale" bson:"defaultLocale"`
	SupportedLocales []string   `json:"supportedLocales" bson:"supportedLocales"`
}

type TileConfig struct {
	Format   string `json:"format" bson:"format"`
	TileSize int    `json:"tileSize" bson:"tileSize"`
	Overlap  int    `json:"overlap" bson:"overlap"`
	Levels   int    `json:"levels" bson:"levels"`
	Width    int    `json:"width" bson:"width"`
	Height   int    `json:"height" bson:"height"`
}

// Release is the immutable manifest produced at publish time. Field order is
// fixed: the manifest is serialized once and must stay byte-identical when
// re-fetched by releaseId.
type Release struct {
	SchemaVersion int              `json:"version"`
	ReleaseId     string           `json:"releaseId"`
	ProjectSlug   string           `json:"projectSlug"`
	PublishedAt   string           `json:"publishedAt"`
	PublishedBy   string           `json:"publishedBy"`
	TilesBase     string           `json:"tilesBase"`
	Tiles         *TileConfig      `json:"tiles,omitempty"`
	Config        ReleaseConfig    `json:"config"`
	Overlays      []ReleaseOverlay `json:"overlays"`
	Checksum      string           `json:"checksum"`
}

// ReleaseOverlay is an Overlay with operator-only fields stripped.
type ReleaseOverlay struct {
	Ref           string            `json:"ref"`
	LayerId       string            `json:"layerId"`
	OverlayType   string            `json:"overlayType"`
	Geometry      string            `json:"geometry"`
	Label         map[string]string `json:"label,omitempty"`
	LabelPosition []float64         `json:"labelPosition,omitempty"`
	SortOrder     int               `json:"sortOrder"`
}
