package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikolay-makurin/entityview/internal/query"
)

// CompiledQuery is the json output of the compile command.
type CompiledQuery struct {
	SQL             string         `json:"sql"`
	Parameters      map[string]any `json:"parameters"`
	CountSQL        string         `json:"countSql"`
	CountParameters map[string]any `json:"countParameters"`
	SelectStar      bool           `json:"selectStar"`
}

func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <query-file>",
		Short: "Compile a query file to SQL",
		Long: `Compile a YAML or JSON query to parameterized SQL over the replica tables.

Use - to read the query from stdin.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}
}

func readQuery(path string, stdin io.Reader) (*query.Model, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read query: %w", err)
	}
	q, err := query.ParseBasicQuery(data)
	if err != nil {
		return nil, err
	}
	return query.Compile(q, query.DefaultNodeFields)
}

func runCompile(opts *RootOptions, path string, cmd *cobra.Command) error {
	m, err := readQuery(path, cmd.InOrStdin())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(CompiledQuery{
			SQL:             m.SQL(),
			Parameters:      m.Parameters().Map(),
			CountSQL:        m.CountSQL(),
			CountParameters: m.CountParameters().Map(),
			SelectStar:      m.IsSelectStar(),
		})
	}

	fmt.Fprintln(out, m.SQL())
	params := m.Parameters()
	for _, name := range params.Names() {
		v, _ := params.Get(name)
		fmt.Fprintf(out, "  :%s = %v\n", name, v)
	}
	return nil
}
