package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tablekeeper/internal/catalog"
	"tablekeeper/internal/snowflake"
	"tablekeeper/internal/ui"
	"tablekeeper/pkg/errors"
)

const (
	menuSearch   = "Search tables by name"
	menuBrowse   = "Browse a schema"
	menuDescribe = "Describe a table from the last results"
	menuAdd      = "Add tables from the last results to the allowlist"
	menuQuit     = "Quit"
)

// Session is the state of one interactive discovery run. It carries the
// last listing between menu steps.
type Session struct {
	svc     *snowflake.Service
	w       io.Writer
	results []catalog.TableKey
}

func runDiscoverInteractive(cmd *cobra.Command, args []string) error {
	if !interactive() {
		return errors.New(errors.ErrCodeUserInput, "Interactive discovery needs a terminal").
			WithSuggestions("Use 'tablekeeper discover search' or 'discover tables' in scripts")
	}
	return withService(cmd, func(ctx context.Context, svc *snowflake.Service) error {
		s := &Session{svc: svc, w: cmd.OutOrStdout()}
		return s.Run(ctx)
	})
}

// Run shows the menu until the user quits.
func (s *Session) Run(ctx context.Context) error {
	for {
		options := []string{menuSearch, menuBrowse}
		if len(s.results) > 0 {
			options = append(options, menuDescribe, menuAdd)
		}
		options = append(options, menuQuit)

		choice, err := ui.Select("What would you like to do?", options)
		if err != nil {
			return err
		}

		switch choice {
		case menuSearch:
			err = s.search(ctx)
		case menuBrowse:
			err = s.browse(ctx)
		case menuDescribe:
			err = s.describe(ctx)
		case menuAdd:
			err = s.add()
		case menuQuit:
			return nil
		}
		if err != nil {
			if stderrors.Is(err, ui.ErrCancelled) || ctx.Err() != nil {
				return err
			}
			ui.ShowError(err)
		}
	}
}

func (s *Session) search(ctx context.Context) error {
	term, err := ui.Input("Table name contains:", "", "case-insensitive substring of the table name")
	if err != nil {
		return err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	keys, err := s.svc.SearchTables(ctx, term)
	if err != nil {
		return err
	}
	s.results = keys
	printKeys(s.w, fmt.Sprintf("Tables matching '%s'", term), keys)
	return nil
}

func (s *Session) browse(ctx context.Context) error {
	databases, err := s.svc.ListDatabases(ctx)
	if err != nil {
		return err
	}
	database, err := ui.SearchableSelect("Database:", databases)
	if err != nil {
		return err
	}

	schemas, err := s.svc.ListSchemas(ctx, database)
	if err != nil {
		return err
	}
	schema, err := ui.SearchableSelect("Schema:", schemas)
	if err != nil {
		return err
	}

	keys, err := s.svc.SchemaTables(ctx, database, schema)
	if err != nil {
		return err
	}
	s.results = keys
	printKeys(s.w, fmt.Sprintf("Tables in %s.%s", database, schema), keys)
	return nil
}

func (s *Session) names() []string {
	names := make([]string, len(s.results))
	for i, key := range s.results {
		names[i] = key.String()
	}
	return names
}

func (s *Session) lookup(name string) (catalog.TableKey, bool) {
	for _, key := range s.results {
		if key.String() == name {
			return key, true
		}
	}
	return catalog.TableKey{}, false
}

func (s *Session) describe(ctx context.Context) error {
	name, err := ui.SearchableSelect("Table:", s.names())
	if err != nil {
		return err
	}
	key, ok := s.lookup(name)
	if !ok {
		return nil
	}
	return describeTable(ctx, s.w, s.svc, key)
}

func (s *Session) add() error {
	selected, err := ui.MultiSelect("Tables to add:", s.names())
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return nil
	}

	tierChoice, err := ui.Select("Tier:", []string{"1", "2", "3", "4"})
	if err != nil {
		return err
	}
	tier, _ := strconv.Atoi(tierChoice)

	keys := make([]catalog.TableKey, 0, len(selected))
	for _, name := range selected {
		if key, ok := s.lookup(name); ok {
			keys = append(keys, key)
		}
	}
	return importTables(keys, tier)
}
