package tools

import (
	"context"
	"sort"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// GetToolFunc builds a tool and its schema on demand. Concrete tool
// packages register themselves in init; DOM-interaction tools provided by
// the host environment plug into the same registry.
type GetToolFunc func(context.Context) (*schema.ToolInfo, tool.InvokableTool, error)

var registeredTools = make(map[string]GetToolFunc)

func RegisterTool(name string, getToolFunc GetToolFunc) {
	registeredTools[name] = getToolFunc
}

// GetAllRegisteredTools instantiates every registered tool in name order,
// returning the schema list for the model and a name lookup for execution.
func GetAllRegisteredTools(ctx context.Context) ([]*schema.ToolInfo, map[string]tool.InvokableTool, error) {
	names := make([]string, 0, len(registeredTools))
	for name := range registeredTools {
		names = append(names, name)
	}
	sort.Strings(names)

	var allToolInfos []*schema.ToolInfo
	allToolsMap := make(map[string]tool.InvokableTool)

	for _, name := range names {
		info, t, err := registeredTools[name](ctx)
		if err != nil {
			return nil, nil, err
		}
		allToolInfos = append(allToolInfos, info)
		allToolsMap[info.Name] = t
	}

	return allToolInfos, allToolsMap, nil
}
