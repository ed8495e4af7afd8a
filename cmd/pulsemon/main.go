// Command pulsemon runs the device core in-process behind a loopback link
// and exposes it through an interactive shell, optional command scripts and
// an optional MQTT bridge.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "yaml config file")
		scriptPath = flag.String("e", "", "run a command script and exit")
		mqttURL    = flag.String("mqtt", "", "bridge reports to this MQTT broker")
	)
	flag.Parse()

	if err := run(*configPath, *scriptPath, *mqttURL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, scriptPath, mqttURL string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if mqttURL != "" {
		cfg.MQTT.URL = mqttURL
	}

	log := setupLogger(cfg.Log)
	defer log.Sync()

	session := uuid.NewString()[:8]
	log.Info("starting monitor", zap.String("session", session))

	m := newMonitor(cfg.deviceConfig(), cfg.adcCount(), session, log)
	m.Start()
	defer m.Stop()

	if cfg.MQTT.URL != "" {
		bridge, err := newBridge(cfg.MQTT, m, session, log)
		if err != nil {
			return err
		}
		defer bridge.Close()
	}

	sh := newShell(m)
	if scriptPath != "" {
		return runScript(sh, scriptPath)
	}
	sh.Println("pulsecore monitor, session " + session + " (help for commands)")
	sh.Run()
	return nil
}
