package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ochairo/instrumentation-verifier/internal/config"
	"github.com/ochairo/instrumentation-verifier/internal/domain-adapters/gateways"
	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
	"github.com/ochairo/instrumentation-verifier/internal/domain/interfaces"
	"github.com/ochairo/instrumentation-verifier/internal/domain/services"
	"github.com/ochairo/instrumentation-verifier/internal/external-adapters/prometheus"
	zlog "github.com/ochairo/instrumentation-verifier/internal/external-adapters/zerolog"
)

// app holds the components shared by every subcommand
type app struct {
	cfg      *config.Config
	logger   interfaces.Logger
	metrics  *prometheus.Recorder
	client   *gateways.RepositoryClient
	resolver *services.MetadataResolver
}

// loadConfig reads the config file (explicit or ./verifier.yml) and the environment
func loadConfig(path string) (*config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

// newApp wires logging, metrics and the repository client from cfg
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	opts := zlog.FromEnv()
	if cfg.Log.Level != "" {
		opts.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		opts.Format = cfg.Log.Format
	}
	opts.Component = "verifier"
	opts.Writer = logOut
	logger := zlog.New(opts)
	metrics := prometheus.NewRecorder()

	repos, err := buildRepositories(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := gateways.ClientConfig{
		Retry: gateways.RetryPolicy{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
		},
		RequireChecksum: cfg.RequireChecksum,
		CacheSize:       cfg.ArtifactCacheSize,
		Logger:          logger,
		Metrics:         metrics,
	}
	if cfg.Signature.Enabled() {
		sigs, err := gateways.NewSignatureVerifier(ctx, cfg.Signature.KeyringFiles, cfg.Signature.KeysURL)
		if err != nil {
			return nil, fmt.Errorf("failed to load signature keys: %w", err)
		}
		logger.Info("signature verification enabled", interfaces.F("keys", sigs.KeyringSize()))
		clientCfg.Signatures = sigs
	}

	client, err := gateways.NewRepositoryClient(repos, clientCfg)
	if err != nil {
		return nil, err
	}

	resolver := services.NewMetadataResolver(client,
		services.WithCache(services.NewMemoryCache()),
		services.WithResolverLogger(logger),
		services.WithResolverMetrics(metrics),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		client:   client,
		resolver: resolver,
	}, nil
}

// defaultQualifiers returns the configured qualifier exclusion policy
func (a *app) defaultQualifiers() (entities.QualifierSet, error) {
	set, err := entities.ParseQualifierSet(a.cfg.DefaultExcludeQualifiers)
	if err != nil {
		return 0, fmt.Errorf("invalid default_exclude_qualifiers: %w", err)
	}
	return set, nil
}

func (a *app) planner() (*services.Planner, error) {
	policy, err := a.defaultQualifiers()
	if err != nil {
		return nil, err
	}
	p := services.NewPlanner(a.resolver, a.logger)
	p.SetDefaultExcludedQualifiers(policy)
	return p, nil
}

// writeMetrics exports the run's metrics when a textfile is configured
func (a *app) writeMetrics() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to write metrics textfile", interfaces.Err(err))
	}
}

// buildRepositories maps configured repositories onto backends by url scheme
func buildRepositories(cfg *config.Config) ([]gateways.Repository, error) {
	repos := make([]gateways.Repository, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		var (
			repo gateways.Repository
			err  error
		)
		switch {
		case strings.HasPrefix(rc.URL, "s3://"):
			useSSL := true
			if rc.UseSSL != nil {
				useSSL = *rc.UseSSL
			}
			repo, err = gateways.NewS3Repository(gateways.S3RepositoryConfig{
				Name:      rc.Name,
				URL:       rc.URL,
				Endpoint:  rc.Endpoint,
				Region:    rc.Region,
				AccessKey: rc.Username,
				SecretKey: rc.Password,
				UseSSL:    useSSL,
			})
		case strings.HasPrefix(rc.URL, "http://"), strings.HasPrefix(rc.URL, "https://"):
			repo, err = gateways.NewHTTPRepository(gateways.HTTPRepositoryConfig{
				Name:      rc.Name,
				URL:       rc.URL,
				Username:  rc.Username,
				Password:  rc.Password,
				UserAgent: cfg.HTTP.UserAgent,
				Timeout:   cfg.HTTP.Timeout,
			})
		default:
			repo, err = gateways.NewFileRepository(rc.Name, rc.URL)
		}
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", rc.Name, err)
		}
		repos = append(repos, repo)
	}
	return repos, nil
}
