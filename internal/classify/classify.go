// Package classify assigns an error category to log messages and scores how
// relevant each entry is to an investigation.
package classify

import (
	"strings"
)

// Category is the broad origin of an error.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryCode
	CategoryInfrastructure
	CategoryConfiguration
	CategoryExternalService
)

// String returns the lowercase category name.
func (c Category) String() string {
	switch c {
	case CategoryCode:
		return "code"
	case CategoryInfrastructure:
		return "infrastructure"
	case CategoryConfiguration:
		return "configuration"
	case CategoryExternalService:
		return "external_service"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Severity grades infrastructure failures.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Infrastructure components.
const (
	ComponentDatabase   = "database"
	ComponentNetwork    = "network"
	ComponentMemory     = "memory"
	ComponentAuth       = "auth"
	ComponentFilesystem = "fs"
)

// Confidence values assigned by Classify.
const (
	KeywordConfidence = 0.9
	UnknownConfidence = 0.2
)

// Classification is the result of classifying one message. Component and
// Severity are only set for CategoryInfrastructure.
type Classification struct {
	Category   Category `json:"category"`
	Component  string   `json:"component,omitempty"`
	Severity   Severity `json:"severity,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Label is a stable name for grouping, e.g. "infrastructure/database".
func (c Classification) Label() string {
	if c.Category == CategoryInfrastructure && c.Component != "" {
		return c.Category.String() + "/" + c.Component
	}
	return c.Category.String()
}

// Weight maps the classification to its category weight in [0,1].
func (c Classification) Weight() float64 {
	switch c.Category {
	case CategoryInfrastructure:
		switch c.Severity {
		case SeverityCritical:
			return 1.0
		case SeverityHigh:
			return 0.8
		case SeverityMedium:
			return 0.6
		default:
			return 0.4
		}
	case CategoryCode:
		return 0.7
	default:
		return 0.2
	}
}

type rule struct {
	keywords       []string
	classification Classification
}

// rules are evaluated in order; the first keyword hit wins.
var rules = []rule{
	{
		keywords:       []string{"database", "sql", "connection"},
		classification: Classification{Category: CategoryInfrastructure, Component: ComponentDatabase, Severity: SeverityHigh},
	},
	{
		keywords:       []string{"timeout", "refused", "unreachable"},
		classification: Classification{Category: CategoryInfrastructure, Component: ComponentNetwork, Severity: SeverityHigh},
	},
	{
		keywords:       []string{"out of memory", "heap"},
		classification: Classification{Category: CategoryInfrastructure, Component: ComponentMemory, Severity: SeverityCritical},
	},
	{
		keywords:       []string{"permission", "denied", "unauthorized"},
		classification: Classification{Category: CategoryInfrastructure, Component: ComponentAuth, Severity: SeverityMedium},
	},
	{
		keywords:       []string{"no such file", "not found"},
		classification: Classification{Category: CategoryInfrastructure, Component: ComponentFilesystem, Severity: SeverityMedium},
	},
	{
		keywords:       []string{"exception", "stacktrace", "traceback"},
		classification: Classification{Category: CategoryCode},
	},
}

// Classify returns the first matching classification for message, compared
// case-insensitively. It is deterministic and depends only on the text.
func Classify(message string) Classification {
	lower := strings.ToLower(message)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				c := r.classification
				c.Confidence = KeywordConfidence
				return c
			}
		}
	}
	return Classification{Category: CategoryUnknown, Confidence: UnknownConfidence}
}
