// Package text provides reply chunking and parsing of provider asset markers.
package text

import "regexp"

var (
	// assetMarkerRegex matches the inline image reference providers embed in replies:
	// `<img src="ID" fuse="true"/>`. The first group captures the asset id.
	assetMarkerRegex = regexp.MustCompile(`<img\s+src="([^"]+)"\s+fuse="true"\s*/?>`)
)
