package domain

import "fmt"

// CDN layout. Everything under releases/{slug}/{releaseId}/ is immutable and
// permanently cacheable.

func ManifestKey(slug, releaseId string) string {
	return fmt.Sprintf("releases/%s/%s/release.json", slug, releaseId)
}

func ReleaseTilesPrefix(slug, releaseId string) string {
	return fmt.Sprintf("releases/%s/%s/tiles/", slug, releaseId)
}

// DraftTilesPrefix is where the out-of-scope build pipeline leaves tiles for
// a draft version before publish promotes them under the release path.
func DraftTilesPrefix(slug string, versionNumber int) string {
	return fmt.Sprintf("builds/%s/v%d/tiles/", slug, versionNumber)
}
