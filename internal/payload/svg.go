// Package payload produces the placeholder payloads served behind the
// limiter.
package payload

import "fmt"

// DefaultColor is the fill used when no color is requested.
const DefaultColor = "#3b82f6"

// ContentTypeSVG is the media type of generated placeholders.
const ContentTypeSVG = "image/svg+xml"

// PlaceholderSVG renders a solid placeholder image of the given dimensions
// with the size printed in the center.
func PlaceholderSVG(width, height int, color string) string {
	if color == "" {
		color = DefaultColor
	}
	return fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
    <rect width="100%%" height="100%%" fill="%s"/>
    <text x="50%%" y="50%%" font-family="Arial" font-size="24" fill="white" dominant-baseline="middle" text-anchor="middle">
        %dx%d
    </text>
</svg>`, width, height, color, width, height)
}
