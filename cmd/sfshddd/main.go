// Command sfshddd runs a standalone chunk-server storage engine: it reads an
// hdd.cfg disk list, scans every configured disk, and serves the engine's
// chunk operations until told to shut down (spec.md §2, §6).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/saunafs/chunkserver-storage/build"
	"github.com/saunafs/chunkserver-storage/chunkstore"
	"github.com/saunafs/chunkserver-storage/config"
	"github.com/saunafs/chunkserver-storage/persist"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sfshddd:", err)
		os.Exit(1)
	}
}

func run() error {
	hddConf := flag.String("hdd-conf", "", "path to the hdd configuration file (overrides HDD_CONF_FILENAME default)")
	logPath := flag.String("log-file", "sfshddd.log", "path to the log file")
	cachePath := flag.String("metadata-cache", "", "directory used to persist the binary metadata cache across restarts")
	flag.Parse()

	cfg := config.DefaultRuntimeConfig()
	if *hddConf != "" {
		cfg.HDDConfFilename = *hddConf
	}
	cfg.MetadataCachePath = *cachePath

	log, err := persist.NewFileLogger(*logPath)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Printf("sfshddd starting, release %s (git %s, built %s)", build.Release, build.GitRevision, build.BuildTime)

	engine := chunkstore.NewEngine(cfg, log)
	if err := engine.Init(); err != nil {
		return err
	}

	go func() {
		if err := engine.Tester.Run(); err != nil {
			log.Severe("tester loop exited", err)
		}
	}()
	go func() {
		if err := engine.Tester.RunAsyncQueue(); err != nil {
			log.Severe("async retest queue exited", err)
		}
	}()
	go func() {
		if err := engine.Pool.Run(); err != nil {
			log.Severe("open-chunk pool sweeper exited", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	for s := range sig {
		if s == syscall.SIGHUP {
			if err := engine.Reload(); err != nil {
				log.Severe("reload failed", err)
			}
			continue
		}
		break
	}

	return engine.Shutdown()
}
