package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"threatscope/cmd/threatscope/ui"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List adversary tools and malware",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "emit JSON instead of columns")
}

type toolJSON struct {
	Name     string `json:"name"`
	AttackID string `json:"attack_id,omitempty"`
	Domain   string `json:"domain,omitempty"`
	Revoked  bool   `json:"revoked,omitempty"`
}

func runTools(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	catalog, err := env.loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	tools := catalog.Tools()

	if toolsJSON {
		out := make([]toolJSON, 0, len(tools))
		for _, t := range tools {
			out = append(out, toolJSON{
				Name:     t.Name,
				AttackID: t.AttackID,
				Domain:   t.Domain,
				Revoked:  t.Revoked,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	s := ui.DefaultStyles()
	fmt.Println(s.Title.Render(fmt.Sprintf("Tools (%d)", len(tools))))
	fmt.Println()
	fmt.Println(ui.RenderToolColumns(tools, listRenderWidth, s))
	return nil
}
