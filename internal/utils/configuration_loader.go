package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	sectionKeySeparatorConstant                     = "."
	environmentKeySeparatorConstant                 = "_"
	listValueSeparatorConstant                      = ","
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
)

// ConfigurationLoader resolves the layered gitpublish settings.
//
// Layers apply in order: built-in defaults from the embedded YAML document,
// the configuration file (explicit path or the first match in the search
// paths), then environment variables. A nested key such as
// workspace.primary_line maps to PREFIX_WORKSPACE_PRIMARY_LINE, so with the
// GITPUBLISH prefix every key under the common, workspace, publish, auth and
// retry sections can be overridden from the environment.
type ConfigurationLoader struct {
	fileName         string
	fileType         string
	environmentScope string
	searchPaths      []string
	embeddedDefaults []byte
	embeddedType     string
}

// LoadedConfiguration reports which configuration file, if any, took part in the merge.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader creates a loader for the named file looked up in searchPaths, with environment overrides read under environmentPrefix.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		fileName:         configurationName,
		fileType:         configurationType,
		environmentScope: environmentPrefix,
		searchPaths:      append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration installs the document merged beneath every other layer.
// An empty document clears it.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedType = strings.TrimSpace(configurationType)
	loader.embeddedDefaults = nil
	if len(configurationData) > 0 {
		loader.embeddedDefaults = append([]byte(nil), configurationData...)
	}
}

// LoadConfiguration merges every layer and decodes the result into targetConfiguration.
// defaultValues seed keys the embedded document does not declare. A missing
// configuration file in the search paths is not an error; an unreadable
// explicit path is.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	settings := viper.New()
	settings.SetConfigName(loader.fileName)

	if mergeError := loader.mergeEmbeddedDefaults(settings); mergeError != nil {
		return LoadedConfiguration{}, mergeError
	}
	for defaultKey, defaultValue := range defaultValues {
		settings.SetDefault(defaultKey, defaultValue)
	}

	loader.bindEnvironment(settings)

	if readError := loader.mergeConfigurationFile(settings, configurationFilePath); readError != nil {
		return LoadedConfiguration{}, readError
	}

	if unmarshalError := settings.Unmarshal(targetConfiguration, viper.DecodeHook(configurationDecodeHook())); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}
	return LoadedConfiguration{ConfigFileUsed: settings.ConfigFileUsed()}, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedDefaults(settings *viper.Viper) error {
	if len(loader.embeddedDefaults) == 0 {
		return nil
	}
	documentType := loader.fileType
	if len(loader.embeddedType) > 0 {
		documentType = loader.embeddedType
	}
	settings.SetConfigType(documentType)
	if mergeError := settings.MergeConfig(bytes.NewReader(loader.embeddedDefaults)); mergeError != nil {
		return fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
	}
	return nil
}

func (loader *ConfigurationLoader) bindEnvironment(settings *viper.Viper) {
	settings.SetEnvPrefix(loader.environmentScope)
	settings.SetEnvKeyReplacer(strings.NewReplacer(sectionKeySeparatorConstant, environmentKeySeparatorConstant))
	settings.AutomaticEnv()
}

func (loader *ConfigurationLoader) mergeConfigurationFile(settings *viper.Viper, configurationFilePath string) error {
	settings.SetConfigType(loader.fileType)
	for _, searchPath := range loader.searchPaths {
		settings.AddConfigPath(searchPath)
	}
	if len(configurationFilePath) > 0 {
		settings.SetConfigFile(configurationFilePath)
	}

	readError := settings.MergeInConfig()
	var notFoundError viper.ConfigFileNotFoundError
	if readError != nil && !errors.As(readError, &notFoundError) {
		return fmt.Errorf(configurationReadErrorTemplateConstant, readError)
	}
	return nil
}

// configurationDecodeHook converts durations such as "2m" and comma-separated environment values into typed fields.
func configurationDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(listValueSeparatorConstant),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}
