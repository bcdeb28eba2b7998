package integration

import (
	"strings"

	"github.com/marcus/scopes/internal/github"
	"github.com/marcus/scopes/internal/store"
)

// HiddenTag marks a task as linked to a remote issue. It is attached and
// removed by the sync engine only.
const HiddenTag = "github"

const fallbackLabel = "projectsmanager"

// IsReservedTag reports whether name is the hidden tag or the application
// label. Reserved names never round-trip between tags and issue labels.
func IsReservedTag(name string) bool {
	name = strings.TrimSpace(name)
	return strings.EqualFold(name, HiddenTag) || strings.EqualFold(name, github.AppLabel)
}

// ValidLabelName reports whether name can be created as a label or tag
// from user input.
func ValidLabelName(name string) bool { return labelPattern.MatchString(name) }

// DefaultLabel derives a label slug from a scope name.
func DefaultLabel(scopeName string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(scopeName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	label := strings.TrimRight(b.String(), "-")
	if label == "" {
		return fallbackLabel
	}
	return label
}

// EffectiveLabel is the scope label the user sees: the effective config's
// label, else the owner's, else one derived from the scope name.
func EffectiveLabel(st State, scope *store.Scope) string {
	if st.EffectiveConfig != nil && st.EffectiveConfig.LabelName != "" {
		return st.EffectiveConfig.LabelName
	}
	if st.OwnerConfig != nil && st.OwnerConfig.LabelName != "" {
		return st.OwnerConfig.LabelName
	}
	return DefaultLabel(scope.Name)
}
