package tools

import (
	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/schema"
)

// BuiltinTools returns the full read-only tool set in its canonical order.
func BuiltinTools(store Store, cfg config.ToolsConfig, registry *schema.Registry) []Tool {
	return []Tool{
		NewListCollectionsTool(registry),
		NewCollectionSchemaTool(registry),
		NewCountTool(store),
		NewFindTool(store, cfg, registry),
		NewAggregateTool(store, registry),
		NewSearchTool(store, cfg, registry),
		NewExplainTool(store),
	}
}
