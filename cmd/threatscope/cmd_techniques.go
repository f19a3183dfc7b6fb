package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"threatscope/cmd/threatscope/ui"
	"threatscope/internal/attack"
)

var techniquesJSON bool

var techniquesCmd = &cobra.Command{
	Use:   "techniques <actor-or-tool>",
	Short: "Show the techniques linked to an actor or tool",
	Long: `Techniques resolves the name against the threat actors first and the
tools second, then prints the linked attack patterns. Actor lookups
produce the technique table; tool lookups produce the tool panel with
its correlated actors.`,
	Args: cobra.ExactArgs(1),
	RunE: runTechniques,
}

func init() {
	techniquesCmd.Flags().BoolVar(&techniquesJSON, "json", false, "emit JSON instead of a table")
}

type techniqueJSON struct {
	Name      string `json:"name"`
	AttackID  string `json:"attack_id,omitempty"`
	Platforms string `json:"platforms,omitempty"`
	KillChain string `json:"kill_chain,omitempty"`
	Revoked   bool   `json:"revoked,omitempty"`
}

func writeTechniquesJSON(techs []attack.Technique) error {
	out := make([]techniqueJSON, 0, len(techs))
	for _, t := range techs {
		out = append(out, techniqueJSON{
			Name:      t.Name,
			AttackID:  t.AttackID,
			Platforms: t.Platforms,
			KillChain: t.KillChain,
			Revoked:   t.Revoked,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runTechniques(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	catalog, err := env.loadCatalog(cmd.Context())
	if err != nil {
		return err
	}
	name := args[0]
	s := ui.DefaultStyles()

	if actor, ok := catalog.ActorByName(name); ok {
		techs := catalog.TechniquesForActor(actor.ID)
		if len(techs) == 0 {
			return fmt.Errorf("No techniques found for the selected actor: %s.", actor.Name)
		}
		if techniquesJSON {
			return writeTechniquesJSON(techs)
		}
		fmt.Println(s.Title.Render(fmt.Sprintf(
			"Techniques for %s - Total Techniques: %d", actor.Name, len(techs))))
		fmt.Println()
		fmt.Println(ui.RenderTechniqueTable(techs, 0, listRenderWidth, s, -1))
		return nil
	}

	if tool, ok := catalog.ToolByName(name); ok {
		techs := catalog.TechniquesForTool(tool.ID)
		if techniquesJSON {
			return writeTechniquesJSON(techs)
		}
		fmt.Println(ui.RenderToolPanel(*tool, techs, catalog.ActorsForTool(tool.ID), listRenderWidth, s))
		return nil
	}

	return fmt.Errorf("Could not find the selected actor: %s.", name)
}
