package filter

// Effect represents the outcome of a filter rule match.
type Effect string

const (
	// EffectInclude keeps the row in the export.
	EffectInclude Effect = "include"
	// EffectExclude drops the row from the export.
	EffectExclude Effect = "exclude"
)

// IsValid returns true when the effect is one of the supported values.
func (e Effect) IsValid() bool {
	switch e {
	case EffectInclude, EffectExclude:
		return true
	default:
		return false
	}
}
