// Package config provides configuration management for sitepipe using Viper
// for loading from files, environment variables, and command-line flags.
//
// The heart of the configuration is the asset category map: each category
// (templates, scripts, styles, css, images, files, fonts) maps a source glob
// to a destination directory. Every category shares the source tree and the
// output tree, and the dev server serves from server.base_dir.
package config

import (
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Category names one asset category.
type Category string

const (
	CategoryTemplates Category = "templates"
	CategoryScripts   Category = "scripts"
	CategoryStyles    Category = "styles"
	CategoryCSS       Category = "css"
	CategoryImages    Category = "images"
	CategoryFiles     Category = "files"
	CategoryFonts     Category = "fonts"
)

// Categories returns every category in the order the build schedules them.
func Categories() []Category {
	return []Category{
		CategoryStyles,
		CategoryCSS,
		CategoryTemplates,
		CategoryScripts,
		CategoryImages,
		CategoryFiles,
		CategoryFonts,
	}
}

// IsCategory reports whether name is a known category.
func IsCategory(name string) bool {
	for _, c := range Categories() {
		if string(c) == name {
			return true
		}
	}
	return false
}

// Reload modes control what a connected browser does after a task writes.
const (
	ReloadFull   = "full"
	ReloadInject = "inject"
	ReloadNone   = "none"
)

// Stylesheet compilers.
const (
	CompilerBuiltin = "builtin"
	CompilerSass    = "sass"
)

type Config struct {
	Source    string                 `yaml:"source" mapstructure:"source"`
	Output    string                 `yaml:"output" mapstructure:"output"`
	Paths     map[string]PathMapping `yaml:"paths" mapstructure:"paths"`
	Server    ServerConfig           `yaml:"server" mapstructure:"server"`
	Styles    StylesConfig           `yaml:"styles" mapstructure:"styles"`
	Templates TemplatesConfig        `yaml:"templates" mapstructure:"templates"`
	Build     BuildConfig            `yaml:"build" mapstructure:"build"`
	Watch     WatchConfig            `yaml:"watch" mapstructure:"watch"`
	Log       LogConfig              `yaml:"log" mapstructure:"log"`
}

// PathMapping is one source glob to destination directory pair.
type PathMapping struct {
	Src    string `yaml:"src" mapstructure:"src"`
	Dest   string `yaml:"dest" mapstructure:"dest"`
	Reload string `yaml:"reload,omitempty" mapstructure:"reload"`
}

type ServerConfig struct {
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
	BaseDir string `yaml:"base_dir" mapstructure:"base_dir"`
	Open    bool   `yaml:"open" mapstructure:"open"`
}

type StylesConfig struct {
	Compiler    string           `yaml:"compiler" mapstructure:"compiler"`
	OutputStyle string           `yaml:"output_style" mapstructure:"output_style"`
	LoadPaths   []string         `yaml:"load_paths,omitempty" mapstructure:"load_paths"`
	SassBinary  string           `yaml:"sass_binary,omitempty" mapstructure:"sass_binary"`
	Autoprefix  AutoprefixConfig `yaml:"autoprefix" mapstructure:"autoprefix"`
}

type AutoprefixConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Grid    bool `yaml:"grid" mapstructure:"grid"`
	Cascade bool `yaml:"cascade" mapstructure:"cascade"`
}

type TemplatesConfig struct {
	Pretty bool                   `yaml:"pretty" mapstructure:"pretty"`
	Layout string                 `yaml:"layout" mapstructure:"layout"`
	Data   map[string]interface{} `yaml:"data,omitempty" mapstructure:"data"`
}

type BuildConfig struct {
	Minify      bool `yaml:"minify" mapstructure:"minify"`
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	Ignore   []string      `yaml:"ignore,omitempty" mapstructure:"ignore"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultMapping describes a category relative to the source and output roots.
type defaultMapping struct {
	src    string
	dest   string
	reload string
}

var defaultMappings = map[Category]defaultMapping{
	CategoryTemplates: {"templates/**/*.+(html|tmpl|md)", "", ReloadFull},
	CategoryScripts:   {"js/**/*", "js", ReloadFull},
	CategoryStyles:    {"sass/**/*.+(sass|scss)", "css", ReloadInject},
	CategoryCSS:       {"css/**/*.css", "css", ReloadNone},
	CategoryImages:    {"images/**/*.+(png|jpeg|jpg|gif|svg)", "images", ReloadFull},
	CategoryFiles:     {"files/**/*.+(png|jpeg|jpg|gif|svg)", "files", ReloadFull},
	CategoryFonts:     {"fonts/*", "fonts", ReloadNone},
}

// DefaultMapping returns the mapping a category gets when the configuration
// leaves it out, rooted at source and output.
func DefaultMapping(c Category, source, output string) PathMapping {
	d := defaultMappings[c]
	return PathMapping{
		Src:    path.Join(source, d.src),
		Dest:   path.Join(output, d.dest),
		Reload: d.reload,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Source: "app",
		Output: "public",
		Paths:  make(map[string]PathMapping),
		Server: ServerConfig{
			Host:    "localhost",
			Port:    3000,
			BaseDir: "public",
		},
		Styles: StylesConfig{
			Compiler:    CompilerBuiltin,
			OutputStyle: "expanded",
			SassBinary:  "sass",
			Autoprefix: AutoprefixConfig{
				Enabled: true,
				Grid:    true,
				Cascade: false,
			},
		},
		Templates: TemplatesConfig{
			Pretty: true,
			Layout: "_layout.html",
		},
		Build: BuildConfig{Concurrency: 8},
		Watch: WatchConfig{Debounce: 150 * time.Millisecond},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
	for _, c := range Categories() {
		cfg.Paths[string(c)] = DefaultMapping(c, cfg.Source, cfg.Output)
	}
	return cfg
}

// Mapping returns the path mapping for a category.
func (c *Config) Mapping(cat Category) PathMapping {
	return c.Paths[string(cat)]
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// EnvPrefix prefixes every environment override, as in SITEPIPE_SERVER_PORT.
const EnvPrefix = "SITEPIPE"

// BindEnv makes v read SITEPIPE_* environment variables, with nested keys
// joined by underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// registerDefaults makes every key known to v. Unmarshal only sees keys viper
// knows about, so an environment override of a key that no file or flag sets
// is lost otherwise.
func registerDefaults(v *viper.Viper) {
	def := Default()
	defaults := map[string]interface{}{
		"source":                    def.Source,
		"output":                    def.Output,
		"server.host":               def.Server.Host,
		"server.port":               def.Server.Port,
		"server.open":               def.Server.Open,
		"styles.compiler":           def.Styles.Compiler,
		"styles.output_style":       def.Styles.OutputStyle,
		"styles.sass_binary":        def.Styles.SassBinary,
		"styles.autoprefix.enabled": def.Styles.Autoprefix.Enabled,
		"styles.autoprefix.grid":    def.Styles.Autoprefix.Grid,
		"styles.autoprefix.cascade": def.Styles.Autoprefix.Cascade,
		"templates.pretty":          def.Templates.Pretty,
		"templates.layout":          def.Templates.Layout,
		"build.minify":              def.Build.Minify,
		"build.concurrency":         def.Build.Concurrency,
		"watch.debounce":            def.Watch.Debounce,
		"log.level":                 def.Log.Level,
		"log.format":                def.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// These defaults depend on source and output, so they are only bound.
	_ = v.BindEnv("server.base_dir")
	_ = v.BindEnv("styles.load_paths")
	_ = v.BindEnv("watch.ignore")
	for _, cat := range Categories() {
		for _, field := range []string{"src", "dest", "reload"} {
			_ = v.BindEnv("paths." + string(cat) + "." + field)
		}
	}
}

// LoadFrom builds the configuration from v, filling anything v leaves unset
// with defaults, and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	registerDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	def := Default()

	if config.Source == "" {
		config.Source = def.Source
	}
	if config.Output == "" {
		config.Output = def.Output
	}
	config.Source = strings.TrimSuffix(config.Source, "/")
	config.Output = strings.TrimSuffix(config.Output, "/")

	if config.Paths == nil {
		config.Paths = make(map[string]PathMapping)
	}
	for _, cat := range Categories() {
		fallback := DefaultMapping(cat, config.Source, config.Output)
		m := config.Paths[string(cat)]
		if m.Src == "" {
			m.Src = fallback.Src
		}
		if m.Dest == "" {
			m.Dest = fallback.Dest
		}
		if m.Reload == "" {
			m.Reload = fallback.Reload
		}
		config.Paths[string(cat)] = m
	}

	if config.Server.Host == "" {
		config.Server.Host = def.Server.Host
	}
	if config.Server.BaseDir == "" {
		config.Server.BaseDir = config.Output
	}

	if config.Styles.Compiler == "" {
		config.Styles.Compiler = def.Styles.Compiler
	}
	if config.Styles.OutputStyle == "" {
		config.Styles.OutputStyle = def.Styles.OutputStyle
	}
	if config.Styles.SassBinary == "" {
		config.Styles.SassBinary = def.Styles.SassBinary
	}
	if config.Templates.Layout == "" {
		config.Templates.Layout = def.Templates.Layout
	}

	if config.Build.Concurrency <= 0 {
		config.Build.Concurrency = def.Build.Concurrency
	}
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = def.Watch.Debounce
	}
	if config.Log.Level == "" {
		config.Log.Level = def.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = def.Log.Format
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
