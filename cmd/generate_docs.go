package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/resources"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
)

const (
	categoryCache = "Response Cache Tools"
	categoryOther = "Other Tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate the MCP tool and resource reference",
		Long: `Generate a markdown reference of the registered MCP tools and qdrant://
resources. The tool list is read from a server instance, so the reference
matches the argument schemas the server actually advertises.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := buildReference()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// buildReference registers everything on an offline server (memory store,
// hash embedder) and renders what it advertises.
func buildReference() (string, error) {
	cfg := server.DefaultConfig()
	cfg.Backend = server.BackendMemory
	cfg.VectorStore.URL = ""
	cfg.Embedding.Provider = embedding.ProviderHash

	sc, err := server.NewServerContext(context.Background(), cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := newMCPServer(sc)
	if err := registerAll(mcpSrv, sc); err != nil {
		return "", err
	}

	tools := make([]mcp.Tool, 0)
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	return generateToolsMarkdown(tools) + generateResourcesMarkdown(resources.Catalog), nil
}

func toolCategory(name string) string {
	switch name {
	case responsecache.ToolSearchResponses, responsecache.ToolGetResponse, responsecache.ToolResponseAnalytics:
		return categoryCache
	}
	return categoryOther
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		c := toolCategory(tool.Name)
		byCategory[c] = append(byCategory[c], tool)
	}

	var sb strings.Builder
	sb.WriteString("# workspace-mcp Reference\n\n")
	sb.WriteString("Generated from the tool definitions registered by `workspace-mcp serve`.\n\n")

	sb.WriteString("## Response Cache\n\n")
	sb.WriteString("Tools outside the response cache tools are answered with a summary while the full response is stored in the vector store:\n\n")
	sb.WriteString("- pass `verbose: true` to receive the full response instead of the summary\n")
	sb.WriteString("- `session_id` and `user_google_email`/`user_email`/`email` arguments are stored with the record\n")
	sb.WriteString("- stored records are read back with `search_responses`, `get_response` and the `qdrant://` resources\n\n")

	for _, category := range []string{categoryCache, categoryOther} {
		list := byCategory[category]
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", category)
		for _, tool := range list {
			writeTool(&sb, tool)
		}
	}
	return sb.String()
}

func writeTool(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		sb.WriteString(tool.Description)
		sb.WriteString("\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}

	// Required arguments first, each group alphabetical.
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	required := tool.InputSchema.Required
	sort.Slice(names, func(i, j int) bool {
		ri, rj := slices.Contains(required, names[i]), slices.Contains(required, names[j])
		if ri != rj {
			return ri
		}
		return names[i] < names[j]
	})

	sb.WriteString("| Argument | Type | Required | Description |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		propType, _ := prop["type"].(string)
		if propType == "" {
			propType = "any"
		}
		desc, _ := prop["description"].(string)
		req := "no"
		if slices.Contains(required, name) {
			req = "yes"
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n", name, propType, req, escapeCell(desc))
	}
	sb.WriteString("\n")
}

func generateResourcesMarkdown(catalog []resources.Descriptor) string {
	var sb strings.Builder
	sb.WriteString("## Resources\n\n")
	sb.WriteString("Every resource returns JSON. Failures are reported as `{\"error\": ...}` in the contents.\n\n")
	sb.WriteString("| URI | Name | Description |\n")
	sb.WriteString("|---|---|---|\n")
	for _, d := range catalog {
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", d.URI, d.Name, escapeCell(d.Description))
	}
	sb.WriteString("\n")
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
