package text

// StripMarkers removes every asset marker from s. No other character is altered.
func StripMarkers(s string) string {
	return assetMarkerRegex.ReplaceAllLiteralString(s, "")
}

// FindMarker returns the asset id of the first marker in s.
func FindMarker(s string) (string, bool) {
	m := assetMarkerRegex.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasMarker reports whether s contains at least one asset marker.
func HasMarker(s string) bool {
	return assetMarkerRegex.MatchString(s)
}
