package layout

import (
	"invoicelayout/pkg/models"
)

// SegmentConfig holds the page-height fractions separating the zones.
type SegmentConfig struct {
	HeaderRatio float64 `toml:"header_ratio"`
	FooterRatio float64 `toml:"footer_ratio"`
}

func DefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{HeaderRatio: 0.3, FooterRatio: 0.7}
}

type SegmentIdentifier struct {
	config SegmentConfig
}

func NewSegmentIdentifier(config SegmentConfig) *SegmentIdentifier {
	return &SegmentIdentifier{config: config}
}

// Identify assigns rows to header, items and footer zones by their y
// position. When nothing classifies, or only a footer results, every row is
// treated as items so that a table filling the lower page is still parsed.
func (s *SegmentIdentifier) Identify(rows []models.Row, page models.Page) ([]models.Segment, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	headerLimit := s.config.HeaderRatio * page.Height
	footerLimit := s.config.FooterRatio * page.Height

	var header, items, footer []models.Row
	for _, r := range rows {
		switch {
		case r.Y < headerLimit:
			header = append(header, r)
		case r.Y > footerLimit:
			footer = append(footer, r)
		default:
			items = append(items, r)
		}
	}

	if len(header) == 0 && len(items) == 0 {
		seg, err := models.NewSegment(models.SegmentItems, rows, page.Number)
		if err != nil {
			return nil, err
		}
		return []models.Segment{seg}, nil
	}

	var segments []models.Segment
	for _, zone := range []struct {
		kind models.SegmentType
		rows []models.Row
	}{
		{models.SegmentHeader, header},
		{models.SegmentItems, items},
		{models.SegmentFooter, footer},
	} {
		if len(zone.rows) == 0 {
			continue
		}
		seg, err := models.NewSegment(zone.kind, zone.rows, page.Number)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
