package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/bc-odata-client/internal/config"
	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/resources"
	"github.com/Sternrassler/bc-odata-client/pkg/webhook"
	"github.com/redis/go-redis/v9"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "bcctl",
		Short:         "Query and change Business Central data",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			lc := logging.DefaultConfig()
			lc.Level = logging.LogLevel(opts.logLevel)
			lc.Pretty = true
			lc.Output = cmd.ErrOrStderr()
			logging.Setup(lc)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML config file (environment variables override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newQueryCmd(),
		newRunCmd(opts),
		newOperationsCmd(),
		newWebhookCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "bcctl", version)
		},
	}
}

func newQueryCmd() *cobra.Command {
	var (
		filters []string
		options odata.OptionSet
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the OData query string built from filters and options",
		Example: `  bcctl query --filter displayName=Contoso --filter postingDateFrom=2024-01-01 --select id,number
  bcctl query --filter "customFilter=balance gt 1000" --orderby "number desc"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parseParams(filters)
			if err != nil {
				return err
			}
			q := odata.BuildQuery(odata.FilterSetFromMap(p), options)
			fmt.Fprintln(cmd.OutOrStdout(), q.Encode())
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "filter as field=value (repeatable)")
	cmd.Flags().StringSliceVar(&options.Select, "select", nil, "fields to return")
	cmd.Flags().StringSliceVar(&options.Expand, "expand", nil, "navigation properties to expand")
	cmd.Flags().StringVar(&options.OrderBy, "orderby", "", "order expression")
	return cmd
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		params         []string
		itemsFile      string
		continueOnFail bool
	)

	cmd := &cobra.Command{
		Use:   "run <resource> <operation>",
		Short: "Run one operation against Business Central",
		Example: `  bcctl run customer getAll --param limit=10 --param filters.displayName=Con
  bcctl run salesInvoice post --param salesInvoiceId=<guid>
  bcctl run customer get --items items.json --continue-on-fail`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []resources.Params
			if itemsFile != "" {
				loaded, err := loadItems(itemsFile)
				if err != nil {
					return err
				}
				items = loaded
			} else {
				p, err := parseParams(params)
				if err != nil {
					return err
				}
				items = []resources.Params{p}
			}

			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			bc, rdb, err := cfg.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer bc.Close()
			defer closeRedis(rdb)

			runner := resources.NewRunner(resources.NewEnv(bc, cfg.Pagination()), nil, resources.Options{ContinueOnFail: continueOnFail})
			results, err := runner.Execute(cmd.Context(), args[0], args[1], items)
			if err != nil {
				return fmt.Errorf("%s.%s: %s", args[0], args[1], client.ErrorMessage(err))
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "parameter as key=value; dotted keys nest (repeatable)")
	cmd.Flags().StringVar(&itemsFile, "items", "", "JSON file with an array of parameter objects")
	cmd.Flags().BoolVar(&continueOnFail, "continue-on-fail", false, "record failed items as {\"error\": ...} and continue")
	cmd.MarkFlagsMutuallyExclusive("param", "items")
	return cmd
}

func newOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operations [resource]",
		Short: "List supported resources and operations",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			grouped := map[string][]string{}
			var order []string
			for _, k := range resources.DefaultTable().Keys() {
				if len(args) == 1 && k.Resource != args[0] {
					continue
				}
				if _, seen := grouped[k.Resource]; !seen {
					order = append(order, k.Resource)
				}
				grouped[k.Resource] = append(grouped[k.Resource], k.Operation)
			}
			for _, r := range order {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %s\n", r, strings.Join(grouped[r], ", "))
			}
		},
	}
}

func newWebhookCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage change-notification subscriptions",
	}

	var clientState string
	create := &cobra.Command{
		Use:   "create <event> <notification-url>",
		Short: "Subscribe a URL to an event unless already subscribed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), root, func(m *webhook.Manager) error {
				event := webhook.Event(args[0])
				exists, err := m.CheckExists(cmd.Context(), event, args[1])
				if err != nil {
					return err
				}
				if exists {
					fmt.Fprintln(cmd.OutOrStdout(), "subscription already exists")
					return nil
				}
				sub, err := m.Create(cmd.Context(), event, args[1], clientState)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			})
		},
	}
	create.Flags().StringVar(&clientState, "client-state", "", "shared secret echoed in notifications (random when empty)")

	remove := &cobra.Command{
		Use:   "delete <event> <notification-url>",
		Short: "Remove the subscription of a URL to an event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(cmd.Context(), root, func(m *webhook.Manager) error {
				event := webhook.Event(args[0])
				if _, err := m.CheckExists(cmd.Context(), event, args[1]); err != nil {
					return err
				}
				return m.Delete(cmd.Context(), event, args[1])
			})
		},
	}

	events := &cobra.Command{
		Use:   "events",
		Short: "List supported events",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, e := range webhook.Events() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
		},
	}

	cmd.AddCommand(create, remove, events)
	return cmd
}

// withManager connects using the root options and runs fn with a webhook
// manager. Subscription ids are kept in Redis when it is configured.
func withManager(ctx context.Context, root *rootOptions, fn func(*webhook.Manager) error) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	bc, rdb, err := cfg.Connect(ctx)
	if err != nil {
		return err
	}
	defer bc.Close()
	defer closeRedis(rdb)

	var store webhook.Store = webhook.NewMemoryStore()
	if rdb != nil {
		store = webhook.NewRedisStore(rdb, 0)
	}
	return fn(webhook.NewManager(bc, store))
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		rdb.Close()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
