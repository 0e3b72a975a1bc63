package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IAMD3/ykgen/internal/registry"
)

// NewModelsCmd lists the configured image models and their adapter groups.
func NewModelsCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured image models and their LoRA groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			models, err := registry.LoadModelRegistry(cfg.Registry.ImageModels)
			if err != nil {
				return err
			}
			loras, err := registry.LoadLoraRegistry(cfg.Registry.Loras)
			if err != nil {
				return err
			}
			resolver := registry.NewResolver(loras)

			out := cmd.OutOrStdout()
			for _, category := range models.Categories() {
				fmt.Fprintf(out, "%s:\n", category)
				profiles, err := models.ListModels(category)
				if err != nil {
					return err
				}
				for _, profile := range profiles {
					marker := " "
					if def, err := models.GetDefault(category); err == nil && def.Name == profile.Name {
						marker = "*"
					}
					group, warnings := resolver.ResolveLoraGroupForModel(profile)
					groupDesc := "(no adapters)"
					if !group.Empty() {
						groupDesc = fmt.Sprintf("%s [%s]", group.Key, strings.Join(group.AdapterNames(), ", "))
					}
					fmt.Fprintf(out, "  %s %-24s %s\n", marker, profile.Name, groupDesc)
					for _, w := range warnings {
						fmt.Fprintf(out, "      warn: %s\n", w.Message)
					}
				}
			}
			return nil
		},
	}
}
