package types

import "strings"

// EntityType identifies the kind of record a result refers to
type EntityType string

const (
	EntityContact      EntityType = "contact"
	EntityNote         EntityType = "note"
	EntityTag          EntityType = "tag"
	EntityRelationship EntityType = "relationship"
)

// AllEntityTypes lists every searchable entity type in bucket order
var AllEntityTypes = []EntityType{EntityContact, EntityNote, EntityTag, EntityRelationship}

// Bucket returns the plural group name used in grouped search responses
func (e EntityType) Bucket() string {
	return string(e) + "s"
}

// Valid reports whether e is a known entity type
func (e EntityType) Valid() bool {
	switch e {
	case EntityContact, EntityNote, EntityTag, EntityRelationship:
		return true
	}
	return false
}

// ParseEntityType accepts either the singular ("contact") or bucket ("contacts") form
func ParseEntityType(s string) (EntityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, et := range AllEntityTypes {
		if s == string(et) || s == et.Bucket() {
			return et, nil
		}
	}
	return "", ErrUnknownEntityType
}

// Contact is the plain contact record exchanged between storage and the cache
type Contact struct {
	ID      int64
	Name    string
	Email   string
	Phone   string
	Company string
	Tags    []string
}
