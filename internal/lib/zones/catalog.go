package zones

import (
	"sync"

	"github.com/movilityai/tripplanner/internal/lib/geo"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the built-in Medellín catalog
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := NewRegistry(medellinZones())
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

func medellinZones() []GeoZone {
	return []GeoZone{
		{
			ID:          "autopista-norte",
			Name:        "Autopista Norte",
			Type:        TypeHighway,
			Description: "Main northbound corridor out of the city",
			Center:      geo.Point{Latitude: 6.2704, Longitude: -75.5664},
			Bounds:      geo.Bounds{North: 6.35, South: 6.25, East: -75.55, West: -75.58},
			Keywords:    []string{"autopista norte", "autop norte", "au norte", "bello", "caribe", "terminal norte"},
			PeakHours: []PeakWindow{
				MustPeakWindow("06:30-09:00"),
				MustPeakWindow("17:00-20:00"),
			},
			AverageDelayMinutes: 40,
			Priority:            PriorityCritical,
		},
		{
			ID:          "autopista-sur",
			Name:        "Autopista Sur",
			Type:        TypeHighway,
			Description: "Main southbound corridor towards Envigado, Sabaneta and Itagüí",
			Center:      geo.Point{Latitude: 6.1701, Longitude: -75.5906},
			Bounds:      geo.Bounds{North: 6.24, South: 6.12, East: -75.56, West: -75.62},
			Keywords:    []string{"autopista sur", "autop sur", "au sur", "envigado", "sabaneta", "itagüí", "las vegas", "mayorca"},
			PeakHours: []PeakWindow{
				MustPeakWindow("06:30-09:00"),
				MustPeakWindow("17:00-20:00"),
			},
			AverageDelayMinutes: 40,
			Priority:            PriorityCritical,
		},
		{
			ID:          "avenida-33",
			Name:        "Avenida 33 (Calle 33)",
			Type:        TypeAvenue,
			Description: "East-west arterial crossing the city",
			Center:      geo.Point{Latitude: 6.2442, Longitude: -75.5812},
			Bounds:      geo.Bounds{North: 6.25, South: 6.24, East: -75.55, West: -75.61},
			Keywords:    []string{"calle 33", "avenida 33", "av 33", "33", "san juan"},
			PeakHours: []PeakWindow{
				MustPeakWindow("07:00-09:00"),
				MustPeakWindow("17:30-19:30"),
			},
			AverageDelayMinutes: 35,
			Priority:            PriorityCritical,
		},
		{
			ID:          "avenida-oriental",
			Name:        "Avenida Oriental",
			Type:        TypeAvenue,
			Description: "Downtown corridor with heavy vehicle flow",
			Center:      geo.Point{Latitude: 6.2442, Longitude: -75.5636},
			Bounds:      geo.Bounds{North: 6.28, South: 6.21, East: -75.56, West: -75.57},
			Keywords:    []string{"avenida oriental", "av oriental", "oriental", "carrera 43"},
			PeakHours: []PeakWindow{
				MustPeakWindow("07:00-09:00"),
				MustPeakWindow("17:00-19:00"),
			},
			AverageDelayMinutes: 30,
			Priority:            PriorityCritical,
		},
		{
			ID:          "carrera-70",
			Name:        "Carrera 70 (Avenida 80)",
			Type:        TypeAvenue,
			Description: "Western corridor through Robledo and Los Conquistadores",
			Center:      geo.Point{Latitude: 6.2456, Longitude: -75.5908},
			Bounds:      geo.Bounds{North: 6.29, South: 6.20, East: -75.58, West: -75.60},
			Keywords:    []string{"carrera 70", "cr 70", "avenida 80", "av 80", "robledo", "conquistadores"},
			PeakHours: []PeakWindow{
				MustPeakWindow("07:00-09:00"),
				MustPeakWindow("17:00-19:00"),
			},
			AverageDelayMinutes: 25,
			Priority:            PriorityHigh,
		},
		{
			ID:          "avenida-poblado",
			Name:        "Avenida El Poblado",
			Type:        TypeAvenue,
			Description: "Commercial and residential district",
			Center:      geo.Point{Latitude: 6.2088, Longitude: -75.5673},
			Bounds:      geo.Bounds{North: 6.25, South: 6.17, East: -75.56, West: -75.58},
			Keywords:    []string{"avenida poblado", "av poblado", "el poblado", "poblado", "milla de oro", "parque lleras"},
			PeakHours: []PeakWindow{
				MustPeakWindow("07:30-09:30"),
				MustPeakWindow("17:30-19:30"),
			},
			AverageDelayMinutes: 20,
			Priority:            PriorityHigh,
		},
		{
			ID:          "regional",
			Name:        "Avenida Regional",
			Type:        TypeHighway,
			Description: "North-south link along the Medellín river",
			Center:      geo.Point{Latitude: 6.2442, Longitude: -75.5945},
			Bounds:      geo.Bounds{North: 6.32, South: 6.17, East: -75.58, West: -75.61},
			Keywords:    []string{"regional", "avenida regional", "av regional", "paralela al rio"},
			PeakHours: []PeakWindow{
				MustPeakWindow("06:30-09:00"),
				MustPeakWindow("17:00-20:00"),
			},
			AverageDelayMinutes: 30,
			Priority:            PriorityHigh,
		},
		{
			ID:          "las-palmas",
			Name:        "Vía Las Palmas",
			Type:        TypeHighway,
			Description: "Mountain road to the eastern Antioquia region",
			Center:      geo.Point{Latitude: 6.1536, Longitude: -75.5234},
			Bounds:      geo.Bounds{North: 6.20, South: 6.10, East: -75.48, West: -75.56},
			Keywords:    []string{"las palmas", "vía las palmas", "via palmas", "variante"},
			PeakHours: []PeakWindow{
				MustPeakWindow("17:00-20:00"),
				MustPeakWindow("06:00-08:00"),
			},
			AverageDelayMinutes: 25,
			Priority:            PriorityMedium,
		},
	}
}
