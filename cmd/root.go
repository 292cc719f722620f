package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JPITSG/ChromeDevLauncher/cmd/flags"
	"github.com/JPITSG/ChromeDevLauncher/config"
	"github.com/JPITSG/ChromeDevLauncher/forward"
	"github.com/JPITSG/ChromeDevLauncher/health"
	"github.com/JPITSG/ChromeDevLauncher/launcher"
	"github.com/JPITSG/ChromeDevLauncher/netiface"
	"github.com/JPITSG/ChromeDevLauncher/process"
	"github.com/JPITSG/ChromeDevLauncher/server"
)

var RootCmd = &cobra.Command{
	Use:   "chromedevlauncher",
	Short: "Supervise a browser with remote debugging forwarded on every interface",
	Long: "Launches the configured browser with remote debugging enabled, " +
		"forwards the debug port from every non-loopback interface to it, " +
		"and tracks process, forwarding and API health.",
	Run: runLauncher,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "path to the settings file")
	RootCmd.PersistentFlags().StringVarP(&flags.ListenAddress, "listen", "l", server.DefaultAddress, "control API listen address")
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLauncher(cmd *cobra.Command, args []string) {
	store, err := config.NewStore(flags.ConfigPath)
	if err != nil {
		log.Fatalf("settings store unavailable: %v", err)
	}

	rules := forward.NewManager(forward.NetshCommander{}, netiface.Enumerate)
	supervisor := process.NewSupervisor()
	monitor := health.NewMonitor(health.DefaultTimeout)

	l := launcher.New(store, rules, supervisor, monitor)
	l.Start()

	srv := server.New(l, flags.ListenAddress)
	srv.Start()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Printf("received signal %v, shutting down", sig)

	if err := srv.Stop(context.Background()); err != nil {
		log.Printf("api server shutdown: %v", err)
	}
	l.Stop()
}
