package core

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"
	"github.com/jo-hoe/shinguard/internal/backend/scenestore"
	"github.com/jo-hoe/shinguard/internal/canvas"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultCanvasWidth      = 350
	defaultCanvasHeight     = 450
	defaultFrameRenderScale = 3.0
	defaultMaxImagesPerSide = 4
	defaultMaxFileBytes     = 10 << 20
	defaultThumbnailWidth   = 160
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type CanvasConfig struct {
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	Background string `yaml:"background"`
	// FrameTemplate is an SVG or raster file; empty selects the built-in frame.
	FrameTemplate    string  `yaml:"frameTemplate"`
	FrameRenderScale float64 `yaml:"frameRenderScale"`
}

type UploadConfig struct {
	MaxImagesPerSide int   `yaml:"maxImagesPerSide"`
	MaxFileBytes     int64 `yaml:"maxFileBytes"`
}

type ExportConfig struct {
	Multiplier  float64 `yaml:"multiplier"`
	JPEGQuality int     `yaml:"jpegQuality"`
}

type ServiceConfig struct {
	Port           int               `yaml:"port"`
	LogLevel       string            `yaml:"logLevel"`
	Database       Database          `yaml:"database"`
	SceneStore     scenestore.Config `yaml:"sceneStore"`
	Canvas         CanvasConfig      `yaml:"canvas"`
	Upload         UploadConfig      `yaml:"upload"`
	Export         ExportConfig      `yaml:"export"`
	ThumbnailWidth int               `yaml:"thumbnailWidth"`
	Commands       []CommandConfig   `yaml:"commands"`
}

// DefaultCommands is the upload pipeline used when the config lists none.
func DefaultCommands() []CommandConfig {
	return []CommandConfig{
		{Name: "PngConverterCommand", Params: map[string]any{}},
		{Name: "MaxSizeCommand", Params: map[string]any{}},
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *ServiceConfig {
	config := &ServiceConfig{}
	config.applyDefaults()
	return config
}

// LoadConfig loads configuration from the specified YAML file.
// ${VAR} references are expanded from the environment before parsing.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

func (config *ServiceConfig) applyDefaults() {
	if config.Port == 0 {
		config.Port = defaultPort
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Canvas.Width == 0 {
		config.Canvas.Width = defaultCanvasWidth
	}
	if config.Canvas.Height == 0 {
		config.Canvas.Height = defaultCanvasHeight
	}
	if config.Canvas.Background == "" {
		config.Canvas.Background = canvas.DefaultBackground
	}
	if config.Canvas.FrameRenderScale == 0 {
		config.Canvas.FrameRenderScale = defaultFrameRenderScale
	}
	if config.Upload.MaxImagesPerSide == 0 {
		config.Upload.MaxImagesPerSide = defaultMaxImagesPerSide
	}
	if config.Upload.MaxFileBytes == 0 {
		config.Upload.MaxFileBytes = defaultMaxFileBytes
	}
	if config.Export.Multiplier == 0 {
		config.Export.Multiplier = canvas.DefaultMultiplier
	}
	if config.Export.JPEGQuality == 0 {
		config.Export.JPEGQuality = canvas.DefaultJPEGQuality
	}
	if config.ThumbnailWidth == 0 {
		config.ThumbnailWidth = defaultThumbnailWidth
	}
	if len(config.Commands) == 0 {
		config.Commands = DefaultCommands()
	}
}

func (config *ServiceConfig) validate() error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port %d out of range", config.Port)
	}
	if _, err := config.SlogLevel(); err != nil {
		return err
	}
	if config.Canvas.Width < 0 || config.Canvas.Height < 0 {
		return fmt.Errorf("canvas size %dx%d must be positive", config.Canvas.Width, config.Canvas.Height)
	}
	if !isHexColor(config.Canvas.Background) {
		return fmt.Errorf("canvas background %q is not a hex colour", config.Canvas.Background)
	}
	if config.Canvas.FrameRenderScale < 0 {
		return fmt.Errorf("frameRenderScale must be positive, got %v", config.Canvas.FrameRenderScale)
	}
	if config.Upload.MaxImagesPerSide < 0 {
		return fmt.Errorf("maxImagesPerSide must be positive, got %d", config.Upload.MaxImagesPerSide)
	}
	if config.Upload.MaxFileBytes < 0 {
		return fmt.Errorf("maxFileBytes must be positive, got %d", config.Upload.MaxFileBytes)
	}
	if config.ThumbnailWidth < 0 {
		return fmt.Errorf("thumbnailWidth must be positive, got %d", config.ThumbnailWidth)
	}
	if err := config.ExportOptions().Validate(); err != nil {
		return fmt.Errorf("invalid export settings: %w", err)
	}

	// Validate commands
	if err := validateCommands(config.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	return nil
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}

// SlogLevel maps logLevel onto a slog level.
func (config *ServiceConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	return level, nil
}

// ExportOptions returns the configured PNG export settings.
func (config *ServiceConfig) ExportOptions() canvas.ExportOptions {
	return canvas.ExportOptions{
		Format:     canvas.FormatPNG,
		Quality:    config.Export.JPEGQuality,
		Multiplier: config.Export.Multiplier,
	}
}

// PipelineConfigs converts the command list for the command registry.
func (config *ServiceConfig) PipelineConfigs() []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(config.Commands))
	for _, cmd := range config.Commands {
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}

func isHexColor(s string) bool {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return false
	}
	switch len(hex) {
	case 3, 4, 6, 8:
	default:
		return false
	}
	for _, c := range strings.ToLower(hex) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
