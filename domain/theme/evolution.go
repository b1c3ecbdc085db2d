package theme

import "time"

// Action is the kind of change an evolution record describes.
type Action string

// Action values.
const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionMerged  Action = "merged"
	ActionSplit   Action = "split"
	ActionDeleted Action = "deleted"
)

// EvolutionRecord is one entry in the append-only audit log of theme changes.
// Records are never mutated after creation.
type EvolutionRecord struct {
	id                int64
	batchID           int64
	action            Action
	themeID           int64
	relatedThemeID    int64
	details           map[string]any
	affectedResponses int
	createdAt         time.Time
}

// NewEvolutionRecord creates an audit record for a theme change.
func NewEvolutionRecord(batchID int64, action Action, themeID int64, details map[string]any, affectedResponses int) EvolutionRecord {
	return EvolutionRecord{
		batchID:           batchID,
		action:            action,
		themeID:           themeID,
		details:           cloneDetails(details),
		affectedResponses: affectedResponses,
		createdAt:         time.Now(),
	}
}

// ReconstructEvolutionRecord recreates an audit record from persistence.
func ReconstructEvolutionRecord(id, batchID int64, action Action, themeID, relatedThemeID int64, details map[string]any, affectedResponses int, createdAt time.Time) EvolutionRecord {
	return EvolutionRecord{
		id:                id,
		batchID:           batchID,
		action:            action,
		themeID:           themeID,
		relatedThemeID:    relatedThemeID,
		details:           details,
		affectedResponses: affectedResponses,
		createdAt:         createdAt,
	}
}

// ID returns the record's database identifier.
func (e EvolutionRecord) ID() int64 { return e.id }

// BatchID returns the batch in which the change happened.
func (e EvolutionRecord) BatchID() int64 { return e.batchID }

// Action returns the kind of change.
func (e EvolutionRecord) Action() Action { return e.action }

// ThemeID returns the primary theme the change concerns.
func (e EvolutionRecord) ThemeID() int64 { return e.themeID }

// RelatedThemeID returns the secondary theme for merges (0 if none).
func (e EvolutionRecord) RelatedThemeID() int64 { return e.relatedThemeID }

// Details returns free-form change details (drift scores, source names).
func (e EvolutionRecord) Details() map[string]any { return cloneDetails(e.details) }

// AffectedResponses returns how many assignments the change touched.
func (e EvolutionRecord) AffectedResponses() int { return e.affectedResponses }

// CreatedAt returns when the record was appended.
func (e EvolutionRecord) CreatedAt() time.Time { return e.createdAt }

// WithID returns a copy with the specified ID.
func (e EvolutionRecord) WithID(id int64) EvolutionRecord {
	e.id = id
	return e
}

// WithRelatedTheme returns a copy referencing a secondary theme.
func (e EvolutionRecord) WithRelatedTheme(themeID int64) EvolutionRecord {
	e.relatedThemeID = themeID
	return e
}

func cloneDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
