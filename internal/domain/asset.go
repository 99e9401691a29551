package domain

// AssetInfo describes a single generated artifact (sample or final).
type AssetInfo struct {
	AssetID    string         `json:"asset_id"`
	URL        string         `json:"url"`
	Resolution string         `json:"resolution,omitempty"`
	Format     string         `json:"format,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
