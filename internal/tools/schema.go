package tools

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nextlevelbuilder/salebot/internal/providers"
)

func stringProp(desc string, minLen int) map[string]interface{} {
	p := map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
	if minLen > 0 {
		p["minLength"] = minLen
	}
	return p
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	req := make([]interface{}, len(required))
	for i, r := range required {
		req[i] = r
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   req,
	}
}

func description(k Kind) string {
	switch k {
	case SearchKnowledge:
		return "Search the shop knowledge base and FAQ for policies, how-tos, warranty and shipping information."
	case SearchSaleScript:
		return "Find the shop's prepared sales reply for a topic such as installment, promotion or beginner advice."
	case GetProductInfo:
		return "Look up a product by model name and return its price, category, stock status and description."
	case AnalyzeSentiment:
		return "Classify the customer's mood and urgency (angry, urgent, worried)."
	case FlagForAdmin:
		return "Ask a human admin to take over this conversation. Use for complaints, refunds, or anything you cannot resolve."
	}
	return ""
}

func parameters(k Kind) map[string]interface{} {
	switch k {
	case SearchKnowledge:
		return objectSchema([]string{"query"}, map[string]interface{}{
			"query": stringProp("What the customer wants to know.", 1),
		})
	case SearchSaleScript:
		return objectSchema([]string{"topic"}, map[string]interface{}{
			"topic": stringProp("Sales topic, e.g. 'ผ่อน 0%'.", 1),
		})
	case GetProductInfo:
		return objectSchema([]string{"model_name"}, map[string]interface{}{
			"model_name": stringProp("Product model name, e.g. 'Mini 4K'.", 1),
			"category":   stringProp("Optional category filter.", 0),
		})
	case AnalyzeSentiment:
		return objectSchema([]string{"message"}, map[string]interface{}{
			"message":         stringProp("The customer message to analyze.", 1),
			"history_summary": stringProp("Optional short summary of earlier turns.", 0),
		})
	case FlagForAdmin:
		return objectSchema([]string{"reason"}, map[string]interface{}{
			"reason":  stringProp("Why an admin is needed.", 1),
			"urgency": stringProp("One of low, medium, high. Defaults to medium.", 0),
		})
	}
	return objectSchema(nil, map[string]interface{}{})
}

// compileSchemas builds one validator per kind from the same parameter
// maps sent to the model.
func compileSchemas() ([numKinds]*gojsonschema.Schema, error) {
	var out [numKinds]*gojsonschema.Schema
	for _, k := range Kinds() {
		s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(parameters(k)))
		if err != nil {
			return out, fmt.Errorf("compile %s schema: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func validateArgs(s *gojsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	res, err := s.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if !res.Valid() {
		var errs []string
		for _, e := range res.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Definitions returns the tool schemas advertised to the provider.
func Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, numKinds)
	for _, k := range Kinds() {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        k.String(),
				Description: description(k),
				Parameters:  parameters(k),
			},
		})
	}
	return defs
}
