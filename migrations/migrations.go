// Package migrations embeds the SQL schema so the migrate command works
// from any directory.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// Migration is one schema step.
type Migration struct {
	Name string
	SQL  string
}

// Version is the name without its .sql or .down.sql suffix, shared by
// the forward and rollback files of one step.
func (m Migration) Version() string {
	return strings.TrimSuffix(strings.TrimSuffix(m.Name, ".sql"), ".down")
}

// Up returns the forward migrations in order.
func Up() ([]Migration, error) { return load(func(n string) bool { return !strings.HasSuffix(n, ".down.sql") }, false) }

// Down returns the rollback migrations, newest first.
func Down() ([]Migration, error) { return load(func(n string) bool { return strings.HasSuffix(n, ".down.sql") }, true) }

func load(keep func(string) bool, reverse bool) ([]Migration, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	var out []Migration
	for _, n := range names {
		if !keep(n) {
			continue
		}
		data, err := files.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: n, SQL: string(data)})
	}
	return out, nil
}
