package docs

import (
	"github.com/CompassSecurity/groovyleek/pkg/docs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewDocsCmd(root *cobra.Command) *cobra.Command {
	var (
		outputDir string
		clean     bool
	)

	docsCmd := &cobra.Command{
		Use:     "docs",
		Short:   "Generate the CLI documentation",
		Long:    "Generate a markdown page per command and a nav.yml index for static site generators.",
		Example: "groovyleek docs --output ./cli-docs",
		GroupID: "Helper",
		Run: func(cmd *cobra.Command, args []string) {
			if err := docs.Generate(docs.GenerateOptions{RootCmd: root, OutputDir: outputDir, Clean: clean}); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate docs")
			}
		},
	}

	docsCmd.Flags().StringVarP(&outputDir, "output", "o", "./cli-docs", "Output directory")
	docsCmd.Flags().BoolVarP(&clean, "clean", "", true, "Delete the output directory before generating")

	return docsCmd
}
