package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/callreport-cli/internal/server"
)

var (
	srvAddr        string
	srvMaxUploadMB int
	srvRate        float64
	srvBurst       int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report pipeline over HTTP",
	Long: `Serve the report pipeline over HTTP.

  GET  /healthz
  POST /api/v1/reports   multipart field "file"; query group_by, period,
                         filter, sheet, delimiter, clean, format=json|xlsx|csv|md|prom`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := pipelineOptions()
		if err != nil {
			return err
		}
		sc := server.Config{
			Addr:       "127.0.0.1:8080",
			RatePerSec: 5,
			Burst:      10,
			Options:    opt,
			GroupBy:    []string{"representative"},
			XLSX:       xlsxOptions(),
			Logger:     slog.Default(),
		}
		maxMB := 20
		if cfg != nil {
			sc.Addr = cfg.ServeAddr
			sc.RatePerSec = cfg.ServeRatePerSec
			sc.Burst = cfg.ServeBurst
			sc.GroupBy = cfg.DefaultGroupBy
			sc.Period = cfg.DefaultPeriod
			sc.TopN = cfg.TopN
			maxMB = cfg.ServeMaxUploadMB
		}
		f := cmd.Flags()
		if f.Changed("addr") {
			sc.Addr = srvAddr
		}
		if f.Changed("max-upload-mb") {
			maxMB = srvMaxUploadMB
		}
		if f.Changed("rate") {
			sc.RatePerSec = srvRate
		}
		if f.Changed("burst") {
			sc.Burst = srvBurst
		}
		sc.MaxUploadBytes = int64(maxMB) << 20
		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(sc).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "127.0.0.1:8080", "listen address (default from config serve_addr)")
	serveCmd.Flags().IntVar(&srvMaxUploadMB, "max-upload-mb", 20, "maximum upload size in MiB")
	serveCmd.Flags().Float64Var(&srvRate, "rate", 5, "report requests per second across all clients (0 = unlimited)")
	serveCmd.Flags().IntVar(&srvBurst, "burst", 10, "rate limiter burst")
}
