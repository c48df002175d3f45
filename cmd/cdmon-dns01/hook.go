package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/dns/cdmon"
	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/solver"
	"github.com/yuriy-kovalchuk/yk-dns01-cdmon/internal/telemetry"
)

const (
	actionPresent = "present"
	actionCleanup = "cleanup"

	envCredentialsPath     = config.EnvCredentialsPath
	defaultCredentialsPath = config.DefaultCredentialsPath
	envPushgateway         = "PUSHGATEWAY_URL"
	pushJob                = "cdmon_dns01"
)

type hookOptions struct {
	credentialsPath string
	secretRef       string
	wait            time.Duration
}

// challengeArgs returns the validation name and value from the positional
// arguments or, without arguments, from the certbot manual hook environment.
func challengeArgs(args []string, getenv func(string) string) (fqdn, value string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	domain := strings.TrimPrefix(strings.TrimSpace(getenv("CERTBOT_DOMAIN")), "*.")
	value = getenv("CERTBOT_VALIDATION")
	if domain == "" || value == "" {
		return "", "", fmt.Errorf("no fqdn and value given and CERTBOT_DOMAIN/CERTBOT_VALIDATION are not set")
	}
	return dns.ChallengeLabel + "." + domain, value, nil
}

func runHook(ctx context.Context, opts *hookOptions, action, fqdn, value string) (err error) {
	log := ctrl.Log.WithName("setup")
	log.Info("starting cdmon-dns01", "version", Version, "action", action, "fqdn", fqdn)

	shutdown, err := telemetry.Setup(ctx, Version)
	if err != nil {
		return fmt.Errorf("unable to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := shutdown(shutdownCtx); serr != nil {
			log.Error(serr, "unable to flush traces")
		}
	}()

	ctx, span := otel.Tracer("github.com/yuriy-kovalchuk/yk-dns01-cdmon/cmd/cdmon-dns01").Start(ctx, "cmd."+action)
	defer span.End()
	span.SetAttributes(attribute.String("dns.fqdn", fqdn))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	creds, err := loadCredentials(ctx, opts)
	if err != nil {
		return fmt.Errorf("unable to load credentials: %w", err)
	}
	log.Info("loaded credentials", "baseDomain", creds.BaseDomain, "zones", creds.Zones)

	reg := prometheus.NewRegistry()
	if url := os.Getenv(envPushgateway); url != "" {
		defer pushMetrics(url, reg, action)
	}

	client, err := cdmon.New(ctrl.Log.WithName("cdmon"), cdmon.Config{
		APIKey:  creds.APIKey,
		APIURL:  creds.APIURL,
		Timeout: creds.Timeout,
		Metrics: cdmon.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("unable to create CDmon client: %w", err)
	}

	s := solver.New(ctrl.Log.WithName("solver"), dns.NewResolver(creds.BaseDomain, creds.Zones...), client)

	switch action {
	case actionPresent:
		if err := s.Present(ctx, fqdn, value); err != nil {
			return err
		}
		if opts.wait > 0 {
			log.Info("waiting before returning", "wait", opts.wait.String())
			select {
			case <-time.After(opts.wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	case actionCleanup:
		if err := s.CleanUp(ctx, fqdn, value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	log.Info("done", "action", action, "fqdn", fqdn)
	return nil
}

// loadCredentials picks the first configured source: Kubernetes Secret,
// credentials file, CDMON_CREDENTIALS_PATH, then the environment.
func loadCredentials(ctx context.Context, opts *hookOptions) (*config.Credentials, error) {
	switch {
	case opts.secretRef != "":
		namespace, name, err := config.ParseSecretRef(opts.secretRef)
		if err != nil {
			return nil, err
		}
		restCfg, err := ctrl.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubeconfig: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("creating Kubernetes client: %w", err)
		}
		return config.LoadCredentialsFromSecret(ctx, clientset, namespace, name)
	case opts.credentialsPath != "":
		return config.LoadCredentialsFromPath(opts.credentialsPath)
	case os.Getenv(envCredentialsPath) != "" || fileExists(defaultCredentialsPath):
		return config.LoadCredentials()
	default:
		return config.FromEnv()
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func pushMetrics(url string, reg *prometheus.Registry, action string) {
	log := ctrl.Log.WithName("metrics")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := push.New(url, pushJob).
		Gatherer(reg).
		Grouping("action", action).
		PushContext(ctx)
	if err != nil {
		log.Error(err, "unable to push metrics", "url", url)
		return
	}
	log.V(1).Info("pushed metrics", "url", url)
}
