package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"k8s.io/examples/storage/blobhelper/pkg/blobs"
	"k8s.io/examples/storage/blobhelper/pkg/credentials"
)

const (
	backendAzure = "azure"
	backendGCS   = "gcs"
)

type config struct {
	Backend         string
	Account         string
	ClientID        string
	Environment     string
	Endpoint        string
	MetricsTextfile string
}

type app struct {
	out io.Writer

	v       *viper.Viper
	cfgFile string

	// newStore builds the Blobstore for cfg; replaced in tests.
	newStore func(cfg config) (blobs.Blobstore, error)

	registry *prometheus.Registry
}

func newApp(out io.Writer) *app {
	return &app{
		out:      out,
		v:        viper.New(),
		newStore: newStore,
		registry: prometheus.NewRegistry(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "blobhelper",
		Short:         "Upload, download, delete and list blobs in Azure Blob Storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "path to a YAML config file")
	flags.String("backend", backendAzure, "storage backend, azure or gcs")
	flags.String("account", "", "Azure storage account name")
	flags.String("client-id", "", "client id of a user-assigned managed identity; the default credential chain is used when empty")
	flags.String("environment", blobs.AzureGlobal, "Azure cloud, one of "+strings.Join(blobs.SupportedEnvironments(), ", "))
	flags.String("endpoint", "", "https URL overriding the blob service URL derived from the account name")
	flags.String("metrics-textfile", "", "write request metrics to this file in the Prometheus text format on exit")

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	flags.AddGoFlagSet(klogFlags)

	for _, name := range []string{"backend", "account", "client-id", "environment", "endpoint", "metrics-textfile"} {
		if err := a.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", name, err))
		}
	}

	root.AddCommand(
		a.uploadCommand(),
		a.downloadCommand(),
		a.deleteCommand(),
		a.listCommand(),
	)
	return root
}

func (a *app) initConfig() error {
	a.v.SetEnvPrefix("BLOBHELPER")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		a.v.SetConfigType("yaml")
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", a.cfgFile, err)
		}
	}
	return nil
}

func (a *app) config() config {
	return config{
		Backend:         a.v.GetString("backend"),
		Account:         a.v.GetString("account"),
		ClientID:        a.v.GetString("client-id"),
		Environment:     a.v.GetString("environment"),
		Endpoint:        a.v.GetString("endpoint"),
		MetricsTextfile: a.v.GetString("metrics-textfile"),
	}
}

// withStore builds the configured store, passes it to f and writes metrics afterwards.
func (a *app) withStore(cmd *cobra.Command, f func(store blobs.Blobstore) error) error {
	log := klog.FromContext(cmd.Context())

	cfg := a.config()
	store, err := a.newStore(cfg)
	if err != nil {
		return err
	}
	instrumented := blobs.NewInstrumentedBlobstore(store, cfg.Backend, a.registry)

	runErr := f(instrumented)

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, a.registry); err != nil {
			if runErr == nil {
				return fmt.Errorf("writing metrics to %q: %w", cfg.MetricsTextfile, err)
			}
			log.Error(err, "writing metrics", "path", cfg.MetricsTextfile)
		}
	}
	return runErr
}

func newStore(cfg config) (blobs.Blobstore, error) {
	switch cfg.Backend {
	case backendAzure, "":
		if cfg.Account == "" {
			return nil, fmt.Errorf("must specify --account or BLOBHELPER_ACCOUNT")
		}
		var opts []blobs.AzureOption
		if cfg.Environment != "" {
			opts = append(opts, blobs.WithEnvironment(cfg.Environment))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, blobs.WithEndpoint(cfg.Endpoint))
		}
		store, err := blobs.NewAzureBlobstore(credentials.Identity{
			AccountName: cfg.Account,
			ClientID:    cfg.ClientID,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating Azure blobstore: %w", err)
		}
		klog.V(2).InfoS("using Azure blob storage", "url", store.ServiceURL(), "managedIdentity", cfg.ClientID != "")
		return store, nil

	case backendGCS:
		klog.V(2).InfoS("using GCS")
		return &blobs.GCSBlobstore{}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q, must be %q or %q", cfg.Backend, backendAzure, backendGCS)
	}
}

func (a *app) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <container> <blob> <file>",
		Short: "Upload a local file, replacing any existing blob",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := blobs.BlobInfo{Container: args[0], Name: args[1]}
			return a.withStore(cmd, func(store blobs.Blobstore) error {
				if err := store.Upload(cmd.Context(), args[2], info); err != nil {
					return fmt.Errorf("uploading %q to %s: %w", args[2], info, err)
				}
				return nil
			})
		},
	}
}

func (a *app) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <container> <blob> <file>",
		Short: "Download a blob to a local file, replacing the file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := blobs.BlobInfo{Container: args[0], Name: args[1]}
			return a.withStore(cmd, func(store blobs.Blobstore) error {
				if err := store.Download(cmd.Context(), info, args[2]); err != nil {
					return fmt.Errorf("downloading %s to %q: %w", info, args[2], err)
				}
				return nil
			})
		},
	}
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <container> <blob>",
		Short: "Delete a blob",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := blobs.BlobInfo{Container: args[0], Name: args[1]}
			return a.withStore(cmd, func(store blobs.Blobstore) error {
				if err := store.Delete(cmd.Context(), info); err != nil {
					return fmt.Errorf("deleting %s: %w", info, err)
				}
				return nil
			})
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container>",
		Short: "List the names of all blobs in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(store blobs.Blobstore) error {
				names, err := store.List(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("listing container %q: %w", args[0], err)
				}
				for _, name := range names {
					fmt.Fprintln(a.out, name)
				}
				return nil
			})
		},
	}
}
