package domain

import (
	"reflect"
	"strings"
	"unicode"
)

// MetadataProvider supplies human-readable names used when describing broken
// rules.
type MetadataProvider interface {
	DisplayName(target any, property string) string
	TypeDisplayName(target any) string
}

// Describer is implemented by objects that can describe themselves, for
// example "Invoice INV-001". Used by BrokenRulesTree(true).
type Describer interface {
	Describe() string
}

// DefaultMetadata derives display names from Go identifiers.
type DefaultMetadata struct{}

// DisplayName splits a property identifier into words.
func (DefaultMetadata) DisplayName(_ any, property string) string {
	return SplitWords(property)
}

// TypeDisplayName splits the target's type name into words.
func (DefaultMetadata) TypeDisplayName(target any) string {
	return SplitWords(TypeName(target))
}

// StaticMetadata resolves names from fixed tables keyed by "Type" and
// "Type.Property", falling back to DefaultMetadata.
type StaticMetadata struct {
	Names map[string]string
}

// DisplayName implements MetadataProvider.
func (m StaticMetadata) DisplayName(target any, property string) string {
	if name, ok := m.Names[TypeName(target)+"."+property]; ok {
		return name
	}
	return DefaultMetadata{}.DisplayName(target, property)
}

// TypeDisplayName implements MetadataProvider.
func (m StaticMetadata) TypeDisplayName(target any) string {
	if name, ok := m.Names[TypeName(target)]; ok {
		return name
	}
	return DefaultMetadata{}.TypeDisplayName(target)
}

// TypeName returns the bare Go type name of value, without package path,
// pointer markers or type arguments.
func TypeName(value any) string {
	if value == nil {
		return ""
	}
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return name
}

// SplitWords turns "InvoiceLineID" into "Invoice Line ID".
func SplitWords(identifier string) string {
	runes := []rune(identifier)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte(' ')
			}
		}
		if r == '_' {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
