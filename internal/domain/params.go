package domain

import (
	"fmt"
	"strings"
)

// Dimensions carries explicit pixel dimensions when the client overrides the
// format's defaults.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GenerationParameters is the structured generation configuration captured
// verbatim at creation time. It is replayed unchanged into regeneration and
// final-generation jobs, so every field the worker understands is explicit
// here rather than hidden in a free-form map.
type GenerationParameters struct {
	OutputFormat            string            `json:"output_format"`
	CustomDimensions        *Dimensions       `json:"custom_dimensions,omitempty"`
	BrandKitID              string            `json:"brand_kit_id,omitempty"`
	UploadedImageReferences []string          `json:"uploaded_image_references,omitempty"`
	TargetPlatformHints     []string          `json:"target_platform_hints,omitempty"`
	EmotionalTone           string            `json:"emotional_tone,omitempty"`
	CulturalAdaptation      map[string]string `json:"cultural_adaptation_parameters,omitempty"`
	DesiredResolution       string            `json:"desired_resolution,omitempty"`
}

// DefaultOutputFormat is applied when the request omits the output format.
const DefaultOutputFormat = "png"

var allowedOutputFormats = map[string]struct{}{
	"png":  {},
	"jpeg": {},
	"webp": {},
	"svg":  {},
	"mp4":  {},
}

// Normalize fills defaults and canonicalizes casing before validation.
func (p *GenerationParameters) Normalize() {
	if p == nil {
		return
	}
	p.OutputFormat = strings.ToLower(strings.TrimSpace(p.OutputFormat))
	if p.OutputFormat == "" {
		p.OutputFormat = DefaultOutputFormat
	}
	p.DesiredResolution = strings.ToLower(strings.TrimSpace(p.DesiredResolution))
}

// Validate ensures the parameters satisfy the worker contract before the
// request is persisted.
func (p GenerationParameters) Validate() error {
	if _, ok := allowedOutputFormats[p.OutputFormat]; !ok {
		return fmt.Errorf("%w: unsupported output_format %q", ErrValidation, p.OutputFormat)
	}
	if p.CustomDimensions != nil {
		if p.CustomDimensions.Width <= 0 || p.CustomDimensions.Height <= 0 {
			return fmt.Errorf("%w: custom_dimensions must be positive", ErrValidation)
		}
	}
	return nil
}
