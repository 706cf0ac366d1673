package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	consulprovider "github.com/knadh/koanf/providers/consul/v2"
	etcdprovider "github.com/knadh/koanf/providers/etcd/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SourceType selects where a Loader reads its document from (§9
// "Configuration hot-reload"). The teacher's fourth, Zookeeper-backed
// type is dropped here; Consul and etcd already exercise the "external
// KV config source" concern and a third backend adds no new coverage.
type SourceType string

const (
	SourceFile   SourceType = "file"
	SourceConsul SourceType = "consul"
	SourceEtcd   SourceType = "etcd"
)

// ParseSourceType converts a CLI/env flag value to a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "":
		return SourceFile, nil
	case "consul":
		return SourceConsul, nil
	case "etcd":
		return SourceEtcd, nil
	default:
		return "", fmt.Errorf("invalid config source: %s (valid: file, consul, etcd)", s)
	}
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Type SourceType

	// Path is a filesystem path for SourceFile, or the KV key for
	// SourceConsul/SourceEtcd.
	Path string

	// Endpoints addresses the remote store for SourceConsul/SourceEtcd;
	// a default is supplied per type when empty.
	Endpoints []string

	// Watch starts a background reload loop after the first Load.
	Watch bool

	// OnChange is invoked with the newly parsed document after each
	// successful reload triggered by Watch.
	OnChange func(*Config) error
}

// Loader loads and, optionally, watches one configuration source.
type Loader struct {
	k       *koanf.Koanf
	options LoaderOptions
	parser  *yaml.YAML
	log     *slog.Logger
	stop    chan struct{}
}

// NewLoader validates opts and returns a ready-to-Load Loader.
func NewLoader(opts LoaderOptions, log *slog.Logger) (*Loader, error) {
	if opts.Type == "" {
		opts.Type = SourceFile
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if len(opts.Endpoints) == 0 {
		switch opts.Type {
		case SourceConsul:
			opts.Endpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.Endpoints = []string{"localhost:2379"}
		}
	}
	return &Loader{
		k:       koanf.New("."),
		options: opts,
		parser:  yaml.Parser(),
		log:     log,
		stop:    make(chan struct{}),
	}, nil
}

func (l *Loader) provider() (koanf.Provider, error) {
	switch l.options.Type {
	case SourceFile:
		return file.Provider(l.options.Path), nil

	case SourceConsul:
		cfg := api.DefaultConfig()
		cfg.Address = l.options.Endpoints[0]
		return consulprovider.Provider(consulprovider.Config{
			Cfg: cfg,
			Key: l.options.Path,
		}), nil

	case SourceEtcd:
		return etcdprovider.Provider(etcdprovider.Config{
			Endpoints:   l.options.Endpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.options.Path,
		}), nil

	default:
		return nil, fmt.Errorf("config: unsupported source %q", l.options.Type)
	}
}

// Load reads the source once, expands environment variable references,
// decodes it onto a Config, applies defaults, and returns it. When
// LoaderOptions.Watch is set it also starts a background reload loop.
func (l *Loader) Load() (*Config, error) {
	provider, err := l.provider()
	if err != nil {
		return nil, err
	}

	// The file provider needs its parser to split YAML into keys; the
	// remote KV providers hand back an already-flat confmap.
	var parser koanf.Parser
	if l.options.Type == SourceFile {
		parser = l.parser
	}

	if err := l.k.Load(provider, parser); err != nil {
		return nil, fmt.Errorf("config: load from %s: %w", l.options.Type, err)
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	if l.options.Watch {
		go l.watch(provider)
	}

	return cfg, nil
}

func (l *Loader) expandEnv() error {
	expanded := expandEnvVarsInData(l.k.Raw())
	expandedMap, ok := expanded.(map[string]any)
	if !ok {
		return fmt.Errorf("config: unexpected shape after environment expansion")
	}
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(expandedMap, "."), nil); err != nil {
		return fmt.Errorf("config: reload expanded document: %w", err)
	}
	l.k = k
	return nil
}

func (l *Loader) decode() (*Config, error) {
	if err := l.expandEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := l.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	cfg.SetDefaults()
	return cfg, nil
}

// watch is a koanf.Provider.Watch callback loop; it only runs for
// providers that implement that optional interface (file, consul, and
// etcd all do).
func (l *Loader) watch(provider koanf.Provider) {
	watcher, ok := provider.(interface {
		Watch(cb func(event any, err error)) error
	})
	if !ok {
		l.log.Warn("config provider does not support watching", "type", l.options.Type)
		return
	}

	err := watcher.Watch(func(event any, err error) {
		select {
		case <-l.stop:
			return
		default:
		}
		if err != nil {
			l.log.Warn("config watch error", "error", err)
			return
		}

		var parser koanf.Parser
		if l.options.Type == SourceFile {
			parser = l.parser
		}
		if err := l.k.Load(provider, parser); err != nil {
			l.log.Warn("config reload failed", "error", err)
			return
		}

		cfg, err := l.decode()
		if err != nil {
			l.log.Warn("reloaded config is invalid, keeping previous", "error", err)
			return
		}

		if l.options.OnChange == nil {
			l.log.Warn("config change detected but no OnChange callback is registered")
			return
		}
		if err := l.options.OnChange(cfg); err != nil {
			l.log.Warn("config change callback failed", "error", err)
		}
	})
	if err != nil {
		l.log.Warn("config watcher stopped", "error", err)
	}
}

// Stop ends the background watch loop started by Load, if any.
func (l *Loader) Stop() {
	close(l.stop)
}

// Load is a convenience wrapper for the common "one-shot, no watch"
// case used by cmd/conduit's validate command.
func Load(opts LoaderOptions, log *slog.Logger) (*Config, error) {
	loader, err := NewLoader(opts, log)
	if err != nil {
		return nil, err
	}
	return loader.Load()
}
