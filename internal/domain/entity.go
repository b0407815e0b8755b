package domain

// MatchType records which resolution tier produced an entity match.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
	MatchContains MatchType = "contains"
	MatchAlias    MatchType = "alias"
	MatchAI       MatchType = "ai"
	MatchLearned  MatchType = "learned"
	MatchNone     MatchType = "none"
)

// EntityMatch is the result of a single resolution tier.
// Confidence is only set for ai and learned matches; lookup-table matches
// are implicitly certain.
type EntityMatch struct {
	EntityID   string    `json:"entityId,omitempty"`
	EntityName string    `json:"entityName"`
	MatchType  MatchType `json:"matchType"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// EntityInfo is the entity attached to a processed transaction.
type EntityInfo struct {
	EntityID   string    `json:"entityId,omitempty"`
	EntityName string    `json:"entityName"`
	EntityURL  string    `json:"entityUrl,omitempty"`
	MatchType  MatchType `json:"matchType"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Confidence returns a pointer to v, for populating optional confidence fields.
func Confidence(v float64) *float64 {
	return &v
}
