package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cierreops/cierre-cli/internal/mapping"
	"github.com/cierreops/cierre-cli/internal/model"
)

var (
	headersAssign     []string
	headersUnassigned []string
	headersFile       string
)

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "Inspect and map spreadsheet headers to payroll concepts",
}

var headersShowCmd = &cobra.Command{
	Use:   "show <document-type>",
	Short: "Show the header sets the server extracted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()

		j, st, err := loadTrackedJob(ctx, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		api := newAPIClient()
		sets, err := api.GetHeaders(ctx, j.ID)
		if err != nil {
			return err
		}

		fmt.Printf("job %s (%s)\n", j.ID, j.State)
		for _, h := range sets.Classified {
			if c, ok := sets.Existing[h]; ok && c != nil {
				fmt.Printf("  %-30s -> %s\n", h, c.Name)
				continue
			}
			fmt.Printf("  %-30s -> (unassigned)\n", h)
		}
		for _, h := range sets.Unclassified {
			fmt.Printf("  %-30s -> (pending)\n", h)
		}
		return nil
	},
}

var headersMapCmd = &cobra.Command{
	Use:   "map <document-type>",
	Short: "Assign headers to concepts and submit the full mapping",
	Long: `Assignments come from repeated --assign header=conceptID flags,
--unassigned header flags, or a YAML file mapping header names to concept
ids (null marks a header as explicitly unassigned). The mapping is
submitted in one shot once every header is decided.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("client"); err != nil {
			return err
		}
		ctx := cmd.Context()

		j, st, err := loadTrackedJob(ctx, args[0])
		if err != nil {
			return err
		}
		defer st.Close()

		api := newAPIClient()
		sets, err := api.GetHeaders(ctx, j.ID)
		if err != nil {
			return err
		}

		engine := mapping.New(sets.All())
		engine.LoadExisting(sets.Existing)
		engine.SetReadOnly(j.State.Terminal())

		decisions, err := collectDecisions()
		if err != nil {
			return err
		}
		for header, conceptID := range decisions {
			if !engine.Select(header) {
				return eris.Errorf("header %q is not pending (already decided or unknown)", header)
			}
			if conceptID == nil {
				if !engine.AssignUnassigned() {
					return eris.Errorf("cannot mark %q unassigned", header)
				}
				continue
			}
			if !engine.Assign(model.Concept{ID: *conceptID}) {
				return eris.Errorf("concept %q is already taken or the job is read-only", *conceptID)
			}
		}

		if pending := engine.Pending(); len(pending) > 0 {
			return eris.Errorf("mapping incomplete, %d headers still pending: %s",
				len(pending), strings.Join(pending, ", "))
		}

		if err := api.SubmitHeaderMapping(ctx, j.ID, engine.Payload()); err != nil {
			return err
		}
		fmt.Printf("mapping submitted for job %s\n", j.ID)

		audit := newActivityLogger(api, st)
		audit.Record(ctx, "encabezados", "mapear", "mapeo de encabezados enviado", "", j.ID)
		return nil
	},
}

// collectDecisions merges --file, --assign and --unassigned into one
// header -> concept decision map. A nil value is the unassigned sentinel.
func collectDecisions() (map[string]*string, error) {
	decisions := make(map[string]*string)

	if headersFile != "" {
		raw, err := os.ReadFile(headersFile)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", headersFile)
		}
		if err := yaml.Unmarshal(raw, &decisions); err != nil {
			return nil, eris.Wrapf(err, "parse %s", headersFile)
		}
	}

	for _, pair := range headersAssign {
		header, conceptID, ok := strings.Cut(pair, "=")
		if !ok || header == "" || conceptID == "" {
			return nil, eris.Errorf("invalid --assign %q, want header=conceptID", pair)
		}
		id := conceptID
		decisions[header] = &id
	}
	for _, header := range headersUnassigned {
		decisions[header] = nil
	}
	return decisions, nil
}

func init() {
	headersMapCmd.Flags().StringArrayVar(&headersAssign, "assign", nil, "header=conceptID assignment (repeatable)")
	headersMapCmd.Flags().StringArrayVar(&headersUnassigned, "unassigned", nil, "header to mark explicitly unassigned (repeatable)")
	headersMapCmd.Flags().StringVar(&headersFile, "file", "", "YAML file of header: conceptID decisions")

	headersCmd.AddCommand(headersShowCmd)
	headersCmd.AddCommand(headersMapCmd)
	rootCmd.AddCommand(headersCmd)
}
