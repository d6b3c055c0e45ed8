// Package rules implements the rules commands: listing the active rule set, testing
// which rule fires for a text, and managing rules stored in the database.
package rules

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/product-tagger/cmd/common"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/config"
	"github.com/jonesrussell/north-cloud/product-tagger/internal/database"
	internalrules "github.com/jonesrussell/north-cloud/product-tagger/internal/rules"
)

var errNotDatabase = errors.New("rules.source must be database to manage stored rules")

// Command returns the rules command.
func Command(flags *common.GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage tagging rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		listCommand(flags),
		testCommand(flags),
		importCommand(flags),
		addCommand(flags),
		toggleCommand(flags, "enable", true),
		toggleCommand(flags, "disable", false),
	)
	return cmd
}

func listCommand(flags *common.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured rules in evaluation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				rs, err := deps.RuleSet(cmd.Context())
				if err != nil {
					return err
				}
				renderRules(cmd.OutOrStdout(), deps.Config.Rules.Source, rs)
				return nil
			})
		},
	}
}

func testCommand(flags *common.GlobalFlags) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "test [text]",
		Short: "Show which rule fires per taxonomy for a product text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" && len(args) == 1 {
				text = args[0]
			}
			if strings.TrimSpace(text) == "" {
				return errors.New("text is required")
			}
			return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
				engine, err := deps.RuleEngine(cmd.Context())
				if err != nil {
					return err
				}
				matches := engine.Match(text)

				t := common.NewTable(cmd.OutOrStdout(), text)
				t.AppendHeader(table.Row{"Taxonomy", "Rule", "Category", "Keywords"})
				for _, g := range deps.Config.Graphs() {
					m, ok := matches[g.Name]
					if !ok {
						t.AppendRow(table.Row{g.Name, "-", "no rule matched", "-"})
						continue
					}
					t.AppendRow(table.Row{g.Name, m.Rule, m.Category, common.JoinOrDash(m.Keywords)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "product text to evaluate")
	return cmd
}

func importCommand(flags *common.GlobalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the stored rules with a YAML rule file or the built-in rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepository(cmd, flags, func(deps *common.CommandDeps, repo *database.RulesRepository) error {
				rs := internalrules.Default()
				if file != "" {
					var err error
					if rs, err = internalrules.LoadFile(file); err != nil {
						return err
					}
				}
				if err := deps.CheckRules(rs); err != nil {
					return err
				}
				if err := repo.ReplaceAll(cmd.Context(), rs); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", len(rs.Rules))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML rule file (default: built-in rules)")
	return cmd
}

func addCommand(flags *common.GlobalFlags) *cobra.Command {
	var (
		rule   internalrules.Rule
		groups []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a rule to the stored rule set",
		Long: `Add appends a rule after the existing ones. Each --all-of flag is one group of
comma-separated alternatives; every group must match for the rule to fire.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule.AllOf = parseGroups(groups)
			return withRepository(cmd, flags, func(deps *common.CommandDeps, repo *database.RulesRepository) error {
				if err := deps.CheckRules(internalrules.RuleSet{Rules: []internalrules.Rule{rule}}); err != nil {
					return err
				}
				id, err := repo.Create(cmd.Context(), rule)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added rule %s (id %d): %s\n", rule.Name, id, rule.Describe())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rule.Name, "name", "", "unique rule name")
	cmd.Flags().StringVar(&rule.Taxonomy, "taxonomy", "", "taxonomy the rule assigns")
	cmd.Flags().StringVar(&rule.Category, "category", "", "category assigned when the rule fires")
	cmd.Flags().StringArrayVar(&groups, "all-of", nil, "comma-separated keyword alternatives (repeatable)")
	cmd.Flags().StringSliceVar(&rule.NoneOf, "none-of", nil, "keywords that prevent the rule from firing")
	for _, name := range []string{"name", "taxonomy", "category", "all-of"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func toggleCommand(flags *common.GlobalFlags, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <rule-name>",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a stored rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cmd, flags, func(deps *common.CommandDeps, repo *database.RulesRepository) error {
				if err := repo.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd rule %s\n", verb, args[0])
				return nil
			})
		},
	}
}

func withRepository(cmd *cobra.Command, flags *common.GlobalFlags, fn func(*common.CommandDeps, *database.RulesRepository) error) error {
	return common.Run(cmd, flags, func(deps *common.CommandDeps) error {
		if deps.Config.Rules.Source != config.RulesDatabase {
			return errNotDatabase
		}
		db, err := deps.DB()
		if err != nil {
			return err
		}
		return fn(deps, database.NewRulesRepository(db))
	})
}

func parseGroups(raw []string) [][]string {
	groups := make([][]string, 0, len(raw))
	for _, r := range raw {
		var group []string
		for kw := range strings.SplitSeq(r, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				group = append(group, kw)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}
	return groups
}

func renderRules(w io.Writer, source string, rs internalrules.RuleSet) {
	t := common.NewTable(w, "Rules ("+source+")")
	t.AppendHeader(table.Row{"#", "Name", "Taxonomy", "Category", "Predicate", "Excludes", "Enabled"})
	for i, r := range rs.Rules {
		t.AppendRow(table.Row{
			i + 1, r.Name, r.Taxonomy, r.Category, r.Describe(), common.JoinOrDash(r.NoneOf), r.IsEnabled(),
		})
	}
	t.Render()
}
