package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/IAMD3/ykgen/internal/registry"
)

// NewDoctorCmd returns a health-check command validating config and the
// registry files it points at.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and registry files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "ComfyUI: %s, video: %v, audio: %v, metrics: %v\n",
				cfg.ComfyUI.Address, cfg.Video.Enabled, cfg.Audio.Enabled, cfg.Server.MetricsEnabled)

			models, err := registry.LoadModelRegistry(cfg.Registry.ImageModels)
			if err != nil {
				return fmt.Errorf("image models: %w", err)
			}
			fmt.Fprintf(out, "Image models OK: %d models in %d categories\n", models.ModelCount(), len(models.Categories()))
			for _, w := range models.Warnings() {
				fmt.Fprintf(out, "  warn: %s\n", w.Message)
			}

			loras, err := registry.LoadLoraRegistry(cfg.Registry.Loras)
			if err != nil {
				return fmt.Errorf("loras: %w", err)
			}
			fmt.Fprintf(out, "LoRA groups OK: %d groups\n", len(loras.Keys()))

			// Surface resolution warnings before a run trips over them.
			resolver := registry.NewResolver(loras)
			for _, category := range models.Categories() {
				profiles, err := models.ListModels(category)
				if err != nil {
					return err
				}
				for _, profile := range profiles {
					_, warnings := resolver.ResolveLoraGroupForModel(profile)
					for _, w := range warnings {
						fmt.Fprintf(out, "  warn (%s): %s\n", profile.Name, w.Message)
					}
				}
			}
			return nil
		},
	}
}
