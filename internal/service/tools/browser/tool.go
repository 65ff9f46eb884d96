package browser

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"webpilot/internal/service/tools"
)

const (
	ReadPageToolName        = "read_page"
	ReadPageToolDescription = "Fetches a web page over HTTP and returns its title, readable text content, and the links found on it. Use this to inspect a page before deciding what to do next."
)

const (
	FindInPageToolName        = "find_in_page"
	FindInPageToolDescription = "Fetches a web page and searches its text for a query string, returning the matching snippets with surrounding context."
)

type ReadPageParams struct {
	URL      string `json:"url" jsonschema:"description=The absolute URL of the page to read."`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"description=Maximum number of characters of page text to return. If the value is less than or equal to 0, it defaults to 8000."`
}

type FindInPageParams struct {
	URL   string `json:"url" jsonschema:"description=The absolute URL of the page to search."`
	Query string `json:"query" jsonschema:"description=The text to search for, matched case-insensitively."`
}

func GetReadPageTool(ctx context.Context) (*schema.ToolInfo, tool.InvokableTool, error) {
	t, err := utils.InferTool(ReadPageToolName, ReadPageToolDescription, ReadPageTool)
	if err != nil {
		return nil, nil, err
	}

	info, err := t.Info(ctx)
	if err != nil {
		return nil, nil, err
	}

	return info, t, nil
}

func GetFindInPageTool(ctx context.Context) (*schema.ToolInfo, tool.InvokableTool, error) {
	t, err := utils.InferTool(FindInPageToolName, FindInPageToolDescription, FindInPageTool)
	if err != nil {
		return nil, nil, err
	}

	info, err := t.Info(ctx)
	if err != nil {
		return nil, nil, err
	}

	return info, t, nil
}

func init() {
	tools.RegisterTool(ReadPageToolName, GetReadPageTool)
	tools.RegisterTool(FindInPageToolName, GetFindInPageTool)
}
