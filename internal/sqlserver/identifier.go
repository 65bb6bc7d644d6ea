package sqlserver

import "fmt"

// sysname allows 128 chars; keep headroom for the _N_log.ldf suffix appended
// to restored physical file names.
const maxIdentifierLen = 110

// Identifier is a database name validated against an allow-list at
// construction time. DDL such as DROP DATABASE and RESTORE cannot take the
// name as a query parameter, so it ends up interpolated into statement text;
// the allow-list is what makes that safe.
type Identifier struct {
	name string
}

// NewIdentifier accepts names matching [A-Za-z_][A-Za-z0-9_]*.
func NewIdentifier(name string) (Identifier, error) {
	if name == "" {
		return Identifier{}, fmt.Errorf("database name is empty")
	}
	if len(name) > maxIdentifierLen {
		return Identifier{}, fmt.Errorf("database name %q exceeds %d characters", name, maxIdentifierLen)
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return Identifier{}, fmt.Errorf("database name %q must not start with a digit", name)
			}
		default:
			return Identifier{}, fmt.Errorf("database name %q: character %q not allowed", name, r)
		}
	}
	return Identifier{name: name}, nil
}

func (id Identifier) String() string { return id.name }

// Bracketed returns the [quoted] form used in statement text.
func (id Identifier) Bracketed() string { return "[" + id.name + "]" }
