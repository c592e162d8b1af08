// Package docs renders the command tree as markdown pages with a YAML navigation index.
package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/CompassSecurity/groovyleek/pkg/format"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

const siteRoot = "groovyleek"

// GenerateOptions contains options for documentation generation
type GenerateOptions struct {
	RootCmd   *cobra.Command
	OutputDir string
	Clean     bool
}

func getFileName(cmd *cobra.Command, level int) string {
	if level == 1 && cmd.GroupID != "" {
		return strings.ToLower(cmd.GroupID) + ".md"
	}
	return cmd.Name() + ".md"
}

func displayName(cmd *cobra.Command, level int) string {
	titleCaser := cases.Title(language.Und, cases.NoLower)
	if level == 1 && cmd.GroupID != "" {
		return titleCaser.String(cmd.GroupID)
	}
	return titleCaser.String(cmd.Name())
}

func linkHandler(s string) string {
	if s == siteRoot+".md" {
		return "/"
	}
	s = strings.TrimPrefix(s, siteRoot+"_")
	s = strings.TrimSuffix(s, ".md")
	return "/" + strings.ReplaceAll(s, "_", "/")
}

func skipCommand(c *cobra.Command) bool {
	return !c.IsAvailableCommand() || c.IsAdditionalHelpTopicCommand()
}

func generateDocs(cmd *cobra.Command, dir string, level int) error {
	var filename string
	if len(cmd.Commands()) > 0 {
		dir = filepath.Join(dir, cmd.Name())
		if err := os.MkdirAll(dir, format.DirUserGroupRead); err != nil {
			return err
		}
		filename = filepath.Join(dir, "index.md")
	} else {
		filename = filepath.Join(dir, getFileName(cmd, level))
	}

	// #nosec G304 - docs are written below the user chosen output directory
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := doc.GenMarkdownCustom(cmd, f, linkHandler); err != nil {
		return err
	}

	for _, c := range cmd.Commands() {
		if skipCommand(c) {
			continue
		}
		if err := generateDocs(c, dir, level+1); err != nil {
			return err
		}
	}
	return nil
}

type NavEntry struct {
	Label    string
	FilePath string
	Children []*NavEntry
}

func buildNav(cmd *cobra.Command, level int, parentPath string) *NavEntry {
	entry := &NavEntry{Label: displayName(cmd, level)}

	if len(cmd.Commands()) == 0 {
		entry.FilePath = filepath.ToSlash(filepath.Join(parentPath, getFileName(cmd, level)))
		return entry
	}

	folder := filepath.Join(parentPath, cmd.Name())
	entry.FilePath = filepath.ToSlash(filepath.Join(folder, "index.md"))
	entry.Children = []*NavEntry{}
	for _, c := range cmd.Commands() {
		if skipCommand(c) || c.Name() == "completion" || c.Name() == "docs" {
			continue
		}
		entry.Children = append(entry.Children, buildNav(c, level+1, folder))
	}
	return entry
}

func convertNavToYaml(entries []*NavEntry) []map[string]interface{} {
	yamlList := []map[string]interface{}{}
	for _, e := range entries {
		navPath := strings.TrimPrefix(e.FilePath, siteRoot+"/")
		if len(e.Children) == 0 {
			yamlList = append(yamlList, map[string]interface{}{
				e.Label: strings.TrimSuffix(navPath, ".md"),
			})
			continue
		}
		yamlList = append(yamlList, map[string]interface{}{
			e.Label: convertNavToYaml(e.Children),
		})
	}
	return yamlList
}

func writeNavYaml(rootCmd *cobra.Command, outputDir string) error {
	rootEntry := buildNav(rootCmd, 0, "")
	index := map[string]interface{}{
		"site_name": "Groovyleek",
		"docs_dir":  siteRoot,
		"repo_url":  "https://github.com/CompassSecurity/groovyleek",
		"nav":       convertNavToYaml(rootEntry.Children),
	}

	yamlData, err := yaml.Marshal(index)
	if err != nil {
		return err
	}

	// #nosec G306 - the navigation index is public documentation
	return os.WriteFile(filepath.Join(outputDir, "nav.yml"), yamlData, format.FilePublicRead)
}

// Generate writes the markdown reference of opts.RootCmd and its nav.yml into opts.OutputDir.
func Generate(opts GenerateOptions) error {
	if opts.OutputDir == "" {
		opts.OutputDir = "./cli-docs"
	}

	if opts.Clean {
		if _, err := os.Stat(opts.OutputDir); err == nil {
			log.Info().Str("folder", opts.OutputDir).Msg("Output directory exists, deleting...")
			if err := os.RemoveAll(opts.OutputDir); err != nil {
				return fmt.Errorf("delete output directory: %w", err)
			}
		}
	}

	if err := os.MkdirAll(opts.OutputDir, format.DirUserGroupRead); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	opts.RootCmd.DisableAutoGenTag = true
	if err := generateDocs(opts.RootCmd, opts.OutputDir, 0); err != nil {
		return fmt.Errorf("generate markdown: %w", err)
	}

	if err := writeNavYaml(opts.RootCmd, opts.OutputDir); err != nil {
		return fmt.Errorf("write nav.yml: %w", err)
	}

	log.Info().Str("folder", opts.OutputDir).Msg("Markdown successfully generated")
	return nil
}
