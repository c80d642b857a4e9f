package zones

import (
	"fmt"
	"io"

	"github.com/twpayne/go-kml"
)

// WriteKML renders the given zones as a KML document: one folder per zone
// holding the center point and the bounds polygon.
func WriteKML(w io.Writer, title string, zones []GeoZone) error {
	folders := make([]kml.Element, 0, len(zones)+1)
	folders = append(folders, kml.Name(title))

	for _, z := range zones {
		b := z.Bounds
		ring := kml.Coordinates(
			kml.Coordinate{Lon: b.West, Lat: b.North},
			kml.Coordinate{Lon: b.East, Lat: b.North},
			kml.Coordinate{Lon: b.East, Lat: b.South},
			kml.Coordinate{Lon: b.West, Lat: b.South},
			kml.Coordinate{Lon: b.West, Lat: b.North},
		)

		folders = append(folders, kml.Folder(
			kml.Name(z.Name),
			kml.Placemark(
				kml.Name(z.Name),
				kml.Description(describe(z)),
				kml.Point(
					kml.Coordinates(kml.Coordinate{Lon: z.Center.Longitude, Lat: z.Center.Latitude}),
				),
			),
			kml.Placemark(
				kml.Name(z.Name+" bounds"),
				kml.Polygon(
					kml.OuterBoundaryIs(
						kml.LinearRing(ring),
					),
				),
			),
		))
	}

	doc := kml.KML(kml.Document(folders...))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write zone KML: %w", err)
	}
	return nil
}

func describe(z GeoZone) string {
	s := fmt.Sprintf("%s (%s priority, ~%d min average delay)", z.Description, z.Priority, z.AverageDelayMinutes)
	for i, w := range z.PeakHours {
		if i == 0 {
			s += ". Peak hours: "
		} else {
			s += ", "
		}
		s += w.String()
	}
	return s
}
