package repository

import (
	"database/sql"
	"time"

	"entgo.io/ent/dialect/sql/schema"

	"github.com/joseph-ayodele/labreports/constants"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func columnNames(cols []*schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFlag(f *constants.Flag) any {
	if f == nil {
		return nil
	}
	return string(*f)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func flagPtr(ns sql.NullString) *constants.Flag {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	f := constants.Flag(ns.String)
	return &f
}
