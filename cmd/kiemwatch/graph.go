package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_graph"
	"github.com/PaloAltoNetworks/kiemwatch/pkg/access_logging"
)

var (
	graphOutput string
	graphRules  bool
	graphUsers  []string
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render resolved access as a Graphviz DOT graph",
	Example: `  kiemwatch graph --rules | dot -Tpng > access.png
  kiemwatch graph --user alice --user bob -o access.dot`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		deps, err := loadClusterDeps(ctx)
		if err != nil {
			return err
		}

		usernames := graphUsers
		if len(usernames) == 0 {
			usernames = deps.roster.Usernames()
		}

		snapshot := deps.fetcher.Fetch(ctx)
		runTime := time.Now()

		entries := make([]access_logging.AccessLogEntry, 0, len(usernames))
		for _, username := range usernames {
			user, ok := deps.roster.Lookup(username)
			if !ok {
				return fmt.Errorf("user %q is not in the roster", username)
			}
			entries = append(entries, access_logging.NewEntry(user.Username, user.Groups, deps.resolver.Resolve(user.Username, snapshot), runTime))
		}

		out := access_graph.Render(entries, access_graph.Options{RenderRules: graphRules})

		if graphOutput == "" || graphOutput == "-" {
			_, err = fmt.Fprintln(os.Stdout, out)
			return err
		}
		return os.WriteFile(graphOutput, []byte(out), 0o644)
	},
}

func init() {
	graphCmd.Flags().StringVarP(&graphOutput, "output", "o", "", "Write the graph to a file instead of stdout")
	graphCmd.Flags().BoolVar(&graphRules, "rules", false, "Show granted resources and verbs next to each role")
	graphCmd.Flags().StringSliceVar(&graphUsers, "user", nil, "Only render these users (repeatable)")
}
