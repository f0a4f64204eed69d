package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"slidingwindow-gateway/config"
	"slidingwindow-gateway/logger"
	"slidingwindow-gateway/middleware/ratelimit/application"
	"slidingwindow-gateway/middleware/ratelimit/domain"
	"slidingwindow-gateway/middleware/ratelimit/infra"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	perSecond  float64
	windowSize float64
	storeMode  string
	storeAddr  string
	keyPrefix  string
}

func newRootCmd(version string) *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "ratelimitctl",
		Short:         "Inspeciona e exercita o ledger do rate limit",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&gf.configPath, "config", "c", "", "arquivo YAML do limiter")
	pf.Float64Var(&gf.perSecond, "per-second", 0, "sobrescreve per_second")
	pf.Float64Var(&gf.windowSize, "window", 0, "sobrescreve window_size (segundos)")
	pf.StringVar(&gf.storeMode, "store-mode", "", "sobrescreve store_mode (local|shared)")
	pf.StringVar(&gf.storeAddr, "store-addr", "", "sobrescreve shared_store_address")
	pf.StringVar(&gf.keyPrefix, "key-prefix", "", "sobrescreve key_prefix")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newCheckCmd(gf))
	root.AddCommand(newInspectCmd(gf))

	return root
}

// limiterConfig aplica as flags explícitas por cima do arquivo (ou do padrão).
func (gf *globalFlags) limiterConfig(cmd *cobra.Command) (config.Limiter, error) {
	lim := config.Default()
	if gf.configPath != "" {
		var err error
		if lim, err = config.LoadLimiterFile(gf.configPath); err != nil {
			return config.Limiter{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("per-second") {
		lim.PerSecond = gf.perSecond
	}
	if flags.Changed("window") {
		lim.WindowSize = gf.windowSize
	}
	if flags.Changed("store-mode") {
		lim.StoreMode = domain.StoreMode(gf.storeMode)
	}
	if flags.Changed("store-addr") {
		lim.SharedStoreAddress = gf.storeAddr
	}
	if flags.Changed("key-prefix") {
		lim.KeyPrefix = gf.keyPrefix
	}
	// processo curto: sem janitor
	lim.CleanupEvery = 0

	if err := lim.Validate(); err != nil {
		return config.Limiter{}, err
	}
	return lim, nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

type checkResult struct {
	Call     int            `json:"call"`
	Identity string         `json:"identity"`
	Resource string         `json:"resource"`
	Allowed  bool           `json:"allowed"`
	Outcome  domain.Outcome `json:"outcome"`
	Count    int64          `json:"count"`
	Rate     float64        `json:"rate"`
	Message  string         `json:"message,omitempty"`
}

func newCheckCmd(gf *globalFlags) *cobra.Command {
	var (
		identity string
		resource string
		calls    int
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Registra chamadas e mostra a decisão de cada uma",
		RunE: func(cmd *cobra.Command, args []string) error {
			lim, err := gf.limiterConfig(cmd)
			if err != nil {
				return err
			}
			ledger, err := infra.OpenLedger(lim.LedgerConfig())
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			lg := logger.NewWithWriter(cmd.ErrOrStderr(), "text", "")
			svc, err := application.NewService(ledger, lim.ServiceConfig(lg))
			if err != nil {
				return err
			}

			results := make([]checkResult, 0, calls)
			for i := 1; i <= calls; i++ {
				dec := svc.Check(cmd.Context(), identity, resource)
				results = append(results, checkResult{
					Call:     i,
					Identity: dec.Key.Identity,
					Resource: dec.Key.Resource,
					Allowed:  dec.Allowed,
					Outcome:  dec.Outcome,
					Count:    dec.Count,
					Rate:     dec.Rate,
					Message:  dec.Message,
				})
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVarP(&identity, "identity", "i", "", "identidade do chamador")
	cmd.Flags().StringVarP(&resource, "resource", "r", "", "recurso (vazio usa o do limiter)")
	cmd.Flags().IntVarP(&calls, "calls", "n", 1, "quantidade de chamadas")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

type inspectResult struct {
	Identity   string  `json:"identity"`
	Resource   string  `json:"resource"`
	Active     int64   `json:"active"`
	Rate       float64 `json:"rate"`
	PerSecond  float64 `json:"per_second"`
	WindowSize float64 `json:"window_size"`
	WouldDeny  bool    `json:"would_deny"`
}

func newInspectCmd(gf *globalFlags) *cobra.Command {
	var (
		identity string
		resource string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Mostra os registros ativos de uma chave sem registrar chamada",
		Long:  "Remove os registros fora da janela e conta os restantes. A próxima chamada seria negada se (ativos+1)/janela > per_second.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lim, err := gf.limiterConfig(cmd)
			if err != nil {
				return err
			}
			ledger, err := infra.OpenLedger(lim.LedgerConfig())
			if err != nil {
				return err
			}
			defer func() { _ = ledger.Close() }()

			if resource == "" {
				resource = lim.Resource
			}
			key := domain.Key{Identity: identity, Resource: resource}

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()

			cutoff := domain.Seconds(time.Now()) - lim.Window().Seconds()
			if err := ledger.Prune(ctx, key, cutoff); err != nil {
				return err
			}
			active, err := ledger.CountActive(ctx, key)
			if err != nil {
				return err
			}

			window := lim.Window().Seconds()
			return writeJSON(cmd.OutOrStdout(), inspectResult{
				Identity:   key.Identity,
				Resource:   key.Resource,
				Active:     active,
				Rate:       float64(active) / window,
				PerSecond:  lim.PerSecond,
				WindowSize: lim.WindowSize,
				WouldDeny:  float64(active+1)/window > lim.PerSecond,
			})
		},
	}

	cmd.Flags().StringVarP(&identity, "identity", "i", "", "identidade do chamador")
	cmd.Flags().StringVarP(&resource, "resource", "r", "", "recurso (vazio usa o do limiter)")
	_ = cmd.MarkFlagRequired("identity")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
