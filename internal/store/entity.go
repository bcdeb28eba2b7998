package store

import (
	"context"
	"fmt"
	"strings"
)

// EntityKind names the entity types that carry GitHub configuration.
type EntityKind int

const (
	KindScope EntityKind = iota + 1
	KindTask
)

var entityKinds = map[string]EntityKind{
	"scope": KindScope,
	"task":  KindTask,
}

// ParseEntityKind maps a lowercase kind name to an EntityKind.
func ParseEntityKind(s string) (EntityKind, error) {
	k, ok := entityKinds[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

func (k EntityKind) String() string {
	switch k {
	case KindScope:
		return "scope"
	case KindTask:
		return "task"
	}
	return fmt.Sprintf("EntityKind(%d)", int(k))
}

// Entity is a Scope or a Task.
type Entity interface {
	Kind() EntityKind
	EntityID() string
	// EntityScopeID is the scope governing access to the entity.
	EntityScopeID() string
}

func (s *Scope) Kind() EntityKind      { return KindScope }
func (s *Scope) EntityID() string      { return s.ID }
func (s *Scope) EntityScopeID() string { return s.ID }

func (t *Task) Kind() EntityKind      { return KindTask }
func (t *Task) EntityID() string      { return t.ID }
func (t *Task) EntityScopeID() string { return t.ScopeID }

// LoadEntity loads the entity of the given kind, or nil if not found.
func (tx *Tx) LoadEntity(ctx context.Context, kind EntityKind, id string) (Entity, error) {
	switch kind {
	case KindScope:
		s, err := tx.GetScope(ctx, id)
		if s == nil || err != nil {
			return nil, err
		}
		return s, nil
	case KindTask:
		t, err := tx.GetTask(ctx, id)
		if t == nil || err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("unknown entity kind %v", kind)
}
