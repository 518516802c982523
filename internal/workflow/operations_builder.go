package workflow

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

const (
	unsupportedOperationTemplateConstant = "unsupported workflow operation: %s"
	unknownToolTemplateConstant          = "workflow step %d references unknown tool %s"
	toolReferenceTypeTemplateConstant    = "workflow step %d tool reference must be a string"
	operationMismatchTemplateConstant    = "workflow step %d operation %s conflicts with tool operation %s"
	optionsDecodeTemplateConstant        = "workflow step %d (%s) has invalid options: %w"
	requiredOptionTemplateConstant       = "workflow step %d (%s) requires option %q"
	endpointOptionKeyConstant            = "endpoint"
	urlOptionKeyConstant                 = "url"
)

// BuildOperations converts the declarative configuration into executable operations.
func BuildOperations(configuration Configuration) ([]Operation, error) {
	operations := make([]Operation, 0, len(configuration.Steps))
	for stepIndex := range configuration.Steps {
		step, resolveError := resolveStep(configuration, stepIndex)
		if resolveError != nil {
			return nil, resolveError
		}
		operation, buildError := buildOperationFromStep(stepIndex+1, step)
		if buildError != nil {
			return nil, buildError
		}
		operations = append(operations, operation)
	}
	return operations, nil
}

// resolveStep merges the referenced tool options under the step's own options.
func resolveStep(configuration Configuration, stepIndex int) (StepConfiguration, error) {
	step := configuration.Steps[stepIndex]
	ordinal := stepIndex + 1

	toolName := ""
	options := map[string]any{}
	for rawKey, value := range step.Options {
		if strings.EqualFold(strings.TrimSpace(rawKey), optionToolReferenceKeyConstant) {
			name, isString := value.(string)
			if !isString {
				return StepConfiguration{}, fmt.Errorf(toolReferenceTypeTemplateConstant, ordinal)
			}
			toolName = strings.TrimSpace(name)
			continue
		}
		options[rawKey] = value
	}
	if len(toolName) == 0 {
		return StepConfiguration{Operation: step.Operation, Options: options}, nil
	}

	tool, found := configuration.toolLookup[toolName]
	if !found {
		return StepConfiguration{}, fmt.Errorf(unknownToolTemplateConstant, ordinal, toolName)
	}
	if len(step.Operation) > 0 && step.Operation != tool.Operation {
		return StepConfiguration{}, fmt.Errorf(operationMismatchTemplateConstant, ordinal, step.Operation, tool.Operation)
	}

	merged := make(map[string]any, len(tool.Options)+len(options))
	for key, value := range tool.Options {
		merged[key] = value
	}
	for key, value := range options {
		merged[key] = value
	}
	return StepConfiguration{Operation: tool.Operation, Options: merged}, nil
}

func buildOperationFromStep(ordinal int, step StepConfiguration) (Operation, error) {
	switch step.Operation {
	case OperationTypeBindRemote:
		operation := &BindRemoteOperation{}
		if decodeError := decodeOptions(ordinal, step, operation); decodeError != nil {
			return nil, decodeError
		}
		if requireError := requireOptions(ordinal, step, map[string]string{endpointOptionKeyConstant: operation.Endpoint, urlOptionKeyConstant: operation.URL}); requireError != nil {
			return nil, requireError
		}
		return operation, nil
	case OperationTypeRenamePrimary:
		operation := &RenamePrimaryOperation{}
		if decodeError := decodeOptions(ordinal, step, operation); decodeError != nil {
			return nil, decodeError
		}
		return operation, nil
	case OperationTypePublish:
		operation := &PublishOperation{}
		if decodeError := decodeOptions(ordinal, step, operation); decodeError != nil {
			return nil, decodeError
		}
		return operation, nil
	default:
		return nil, fmt.Errorf(unsupportedOperationTemplateConstant, step.Operation)
	}
}

func decodeOptions(ordinal int, step StepConfiguration, target any) error {
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if decoderError != nil {
		return decoderError
	}
	if decodeError := decoder.Decode(step.Options); decodeError != nil {
		return fmt.Errorf(optionsDecodeTemplateConstant, ordinal, step.Operation, decodeError)
	}
	return nil
}

func requireOptions(ordinal int, step StepConfiguration, values map[string]string) error {
	for _, key := range []string{endpointOptionKeyConstant, urlOptionKeyConstant} {
		value, required := values[key]
		if required && len(strings.TrimSpace(value)) == 0 {
			return fmt.Errorf(requiredOptionTemplateConstant, ordinal, step.Operation, key)
		}
	}
	return nil
}
