package release

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/masterplanhq/masterplan-server/domain"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
)

var defaultReleaseConfig = domain.ReleaseConfig{
	DefaultViewBox:   "0 0 4096 4096",
	DefaultZoom:      domain.ZoomConfig{Min: 0.5, Max: 4.0, Default: 1.0},
	DefaultLocale:    "en",
	SupportedLocales: []string{"en"},
}

// NewReleaseId returns a globally unique id sortable by creation time:
// rel_{yyyymmddhhmmss}_{8 hex chars}.
func NewReleaseId(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("rel_%s_%s", now.UTC().Format("20060102150405"), hex.EncodeToString(id[:4]))
}

// BuildManifest assembles the immutable release manifest from a draft.
// Overlays are snapshotted in a stable order and stripped of operator-only
// fields so that the checksum is reproducible for identical draft content.
func BuildManifest(version domain.ReleaseVersion, releaseId string, publishedAt time.Time, publishedBy string) (release domain.Release, err error) {
	draft := version.Draft
	if draft.TilesBase == "" {
		return domain.Release{}, fmt.Errorf("%w: draft has no base-map tile reference", releaseapi.ErrValidationFailed)
	}
	overlays := make([]domain.ReleaseOverlay, 0, len(draft.Overlays))
	for _, o := range draft.Overlays {
		if o.GeometryError != "" {
			return domain.Release{}, fmt.Errorf("%w: overlay %s has unresolved geometry: %s",
				releaseapi.ErrValidationFailed, o.Ref, o.GeometryError)
		}
		overlays = append(overlays, domain.ReleaseOverlay{
			Ref:           o.Ref,
			LayerId:       o.LayerId,
			OverlayType:   o.OverlayType,
			Geometry:      o.Geometry,
			Label:         o.Label,
			LabelPosition: o.LabelPosition,
			SortOrder:     o.SortOrder,
		})
	}
	sort.SliceStable(overlays, func(i, j int) bool {
		if overlays[i].LayerId != overlays[j].LayerId {
			return overlays[i].LayerId < overlays[j].LayerId
		}
		return overlays[i].Ref < overlays[j].Ref
	})

	conf := defaultReleaseConfig
	if draft.Config != nil {
		conf = *draft.Config
	}

	checksum, err := contentChecksum(conf, draft.TilesBase, draft.Tiles, overlays)
	if err != nil {
		return
	}
	return domain.Release{
		SchemaVersion: 3,
		ReleaseId:     releaseId,
		ProjectSlug:   version.ProjectSlug,
		PublishedAt:   publishedAt.UTC().Format(time.RFC3339),
		PublishedBy:   publishedBy,
		TilesBase:     draft.TilesBase,
		Tiles:         draft.Tiles,
		Config:        conf,
		Overlays:      overlays,
		Checksum:      checksum,
	}, nil
}

// contentChecksum covers only the logical content, not publish metadata:
// rebuilding an identical draft yields an identical checksum regardless of
// when or by whom it is published.
func contentChecksum(conf domain.ReleaseConfig, tilesBase string, tiles *domain.TileConfig, overlays []domain.ReleaseOverlay) (string, error) {
	payload := struct {
		Config    domain.ReleaseConfig    `json:"config"`
		TilesBase string                  `json:"tilesBase"`
		Tiles     *domain.TileConfig      `json:"tiles,omitempty"`
		Overlays  []domain.ReleaseOverlay `json:"overlays"`
	}{conf, tilesBase, tiles, overlays}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
