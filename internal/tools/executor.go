package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nextlevelbuilder/salebot/internal/business"
	"github.com/nextlevelbuilder/salebot/internal/providers"
)

// Executor runs one tool call against one resolved business. Every tool is
// pure over the BusinessConfig; Execute never returns nil and never panics.
type Executor struct {
	schemas [numKinds]*gojsonschema.Schema
	lexicon *Lexicon
}

// NewExecutor compiles the argument schemas. A nil lexicon uses the embedded one.
func NewExecutor(lexicon *Lexicon) (*Executor, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if lexicon == nil {
		if lexicon, err = LoadLexicon(nil); err != nil {
			return nil, err
		}
	}
	return &Executor{schemas: schemas, lexicon: lexicon}, nil
}

func (e *Executor) Execute(ctx context.Context, biz *business.BusinessConfig, call providers.ToolCall) (res *Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tools.panic", "tool", call.Name, "panic", r)
			res = ErrorResult(fmt.Sprintf("tool %s failed", call.Name))
		}
		res.Tool = call.Name
	}()

	kind, ok := ParseKind(call.Name)
	if !ok {
		slog.Warn("tools.unknown", "tool", call.Name, "business", biz.ID)
		return ErrorResult(fmt.Sprintf("unknown tool: %s", call.Name))
	}
	if err := validateArgs(e.schemas[kind], call.Arguments); err != nil {
		return ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", kind, err))
	}

	switch kind {
	case SearchKnowledge:
		return searchKnowledge(biz, call.Arguments)
	case SearchSaleScript:
		return searchSaleScript(biz, call.Arguments)
	case GetProductInfo:
		return getProductInfo(biz, call.Arguments)
	case AnalyzeSentiment:
		return e.analyzeSentiment(call.Arguments)
	case FlagForAdmin:
		return flagForAdmin(call.Arguments)
	}
	return ErrorResult(fmt.Sprintf("unknown tool: %s", call.Name))
}
