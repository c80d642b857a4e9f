package alerts

import (
	"context"
	"strings"
)

// typeKeywords are checked in order; the first family with a hit wins
var typeKeywords = []struct {
	alertType AlertType
	keywords  []string
}{
	{TypeAccident, []string{"accidente", "choque", "colisión", "colision", "volcamiento", "atropello", "accident", "crash", "collision"}},
	{TypeClosure, []string{"cierre", "cerrada", "cerrado", "bloqueo", "closure", "closed", "blocked"}},
	{TypeConstruction, []string{"obra", "obras", "construcción", "construccion", "mantenimiento", "reparación", "construction", "roadwork"}},
	{TypeProtest, []string{"manifestación", "manifestacion", "protesta", "marcha", "paro", "protest", "march"}},
	{TypeEvent, []string{"evento", "concierto", "partido", "feria", "desfile", "event", "concert", "match"}},
	{TypeWeather, []string{"lluvia", "inundación", "inundacion", "derrumbe", "deslizamiento", "granizo", "rain", "flood", "landslide"}},
	{TypeCongestion, []string{"trancón", "trancon", "congestión", "congestion", "lento", "tráfico pesado", "traffic jam", "heavy traffic"}},
}

// severityKeywords map text cues to severity, strongest first
var severityKeywords = []struct {
	severity Severity
	keywords []string
}{
	{SeverityCritical, []string{"grave", "muerto", "muertos", "fallecido", "cierre total", "totalmente cerrada", "fatal", "emergencia"}},
	{SeverityHigh, []string{"heridos", "herido", "bloqueo", "cerrada", "cierre", "volcamiento", "colapso", "injur", "blocked"}},
	{SeverityMedium, []string{"choque", "accidente", "obras", "lento", "trancón", "trancon", "congestión", "manifestación", "lluvia"}},
}

// InferType guesses the alert type from free text
func InferType(text string) AlertType {
	lower := strings.ToLower(text)
	for _, family := range typeKeywords {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.alertType
			}
		}
	}
	return TypeOther
}

// InferSeverity guesses the severity from free text, defaulting to low
func InferSeverity(text string) Severity {
	lower := strings.ToLower(text)
	for _, level := range severityKeywords {
		for _, kw := range level.keywords {
			if strings.Contains(lower, kw) {
				return level.severity
			}
		}
	}
	return SeverityLow
}

// KeywordClassifier classifies text with the static keyword tables
type KeywordClassifier struct{}

// Classify implements Classifier
func (KeywordClassifier) Classify(_ context.Context, text string) (Classification, error) {
	return Classification{
		Type:     InferType(text),
		Severity: InferSeverity(text),
	}, nil
}
