// Package main is the provision-ble daemon entry point. It wires the config,
// bluez-facing GATT registry, provisioning state machine, NetworkManager
// collaborator, and netlink monitor together around a single event loop.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	dbus "github.com/godbus/dbus/v5"
	"github.com/jessevdk/go-flags"
	"github.com/nightlyone/lockfile"
	provision "github.com/pidevelop/provision"
	"github.com/pidevelop/provision/bluez"
	"github.com/pidevelop/provision/gatt"
	"github.com/pidevelop/provision/provisioning"
	"github.com/pidevelop/provision/wifi"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	goutils "go.viam.com/utils"
)

var (
	activeBackgroundWorkers sync.WaitGroup

	// only changed/set at startup, so no mutex.
	globalLogger = newLogger(false)
)

//nolint:lll
type daemonOpts struct {
	Config  string `default:"/etc/provision/config.json" description:"Path to config file"    long:"config"  short:"c"`
	Debug   bool   `description:"Enable debug logging"   env:"PROVISION_BLE_DEBUG"            long:"debug"   short:"d"`
	Help    bool   `description:"Show this help message" long:"help"                          short:"h"`
	Version bool   `description:"Show version"           long:"version"                       short:"v"`
	Install bool   `description:"Install systemd service" long:"install"`
	DevMode bool   `description:"Allow non-root"         env:"PROVISION_BLE_DEVMODE"          long:"dev-mode"`
}

func main() {
	ctx, cancel := setupExitSignalHandling()

	defer func() {
		cancel()
		activeBackgroundWorkers.Wait()
	}()

	var opts daemonOpts

	parser := flags.NewParser(&opts, flags.IgnoreUnknown)
	parser.Usage = "runs as a background service and provisions Wi-Fi credentials over BLE."

	_, err := parser.Parse()
	exitIfError(err)

	if opts.Help {
		var b bytes.Buffer
		parser.WriteHelp(&b)
		//nolint:forbidigo
		fmt.Println(b.String())
		return
	}

	if opts.Version {
		//nolint:forbidigo
		fmt.Printf("Version: %s\nGit Revision: %s\n", provision.GetVersion(), provision.GetRevision())
		return
	}

	if opts.Debug {
		globalLogger = newLogger(true)
	}

	// need root for the system bus policies bluez and NetworkManager ship with
	curUser, err := user.Current()
	exitIfError(err)
	if curUser.Uid != "0" && !opts.DevMode {
		//nolint:forbidigo
		fmt.Printf("provision-ble must be run as root (uid 0), but current user is %s (uid %s)\n", curUser.Username, curUser.Uid)
		return
	}

	if opts.Install {
		exitIfError(install(globalLogger))
		return
	}

	// use a lockfile to prevent running two daemons on the same machine
	pidFile, err := getLock()
	exitIfError(err)
	defer func() {
		if err := pidFile.Unlock(); err != nil {
			globalLogger.Error(errors.Wrapf(err, "unlocking %s", pidFile))
		}
	}()

	globalLogger.Infof("provision-ble version: %s git revision: %s", provision.GetVersion(), provision.GetRevision())

	cfg, err := provision.LoadConfig(opts.Config, globalLogger)
	exitIfError(err)

	conn, err := dbus.ConnectSystemBus()
	exitIfError(errors.Wrap(err, "connecting to system bus"))
	defer func() {
		if err := conn.Close(); err != nil {
			globalLogger.Error(errors.Wrap(err, "closing system bus connection"))
		}
	}()

	loop := provision.NewLoop(globalLogger)

	wifiMgr, err := wifi.NewManager(globalLogger, cfg.Wifi.Interface, cfg.Wifi.ScanSettle())
	exitIfError(err)

	registry := gatt.NewRegistry(conn, loop, globalLogger)
	machine := provisioning.NewMachine(globalLogger, wifiMgr, registry, gatt.StatePath, cfg.Wifi.NotifyBudgetBytes)

	exitIfError(registry.ExportApplication())
	exitIfError(registry.ExportService(&gatt.Service{
		UUID:    cfg.BLE.ServiceUUID,
		Path:    gatt.ServicePath,
		Primary: true,
	}))
	exitIfError(registry.ExportCharacteristic(gatt.NewCharacteristic(
		cfg.BLE.DeviceInfoUUID, gatt.DeviceInfoPath, gatt.ServicePath,
		[]string{gatt.FlagRead},
		gatt.NewDeviceInfoHandler(cfg.DeviceInfo, globalLogger),
	)))
	exitIfError(registry.ExportCharacteristic(gatt.NewCharacteristic(
		cfg.BLE.StateUUID, gatt.StatePath, gatt.ServicePath,
		[]string{gatt.FlagRead, gatt.FlagNotify},
		machine.StateHandler(),
	)))
	exitIfError(registry.ExportCharacteristic(gatt.NewCharacteristic(
		cfg.BLE.CommandUUID, gatt.CommandPath, gatt.ServicePath,
		[]string{gatt.FlagWrite},
		machine.CommandHandler(),
	)))

	adv := bluez.NewAdvertisement(cfg.BLE.ServiceUUID, globalLogger)
	exitIfError(adv.Export(conn))

	adapter, err := bluez.FindAdapter(conn, globalLogger)
	exitIfError(err)
	bluez.SetAlias(conn, adapter, cfg.BLE.AdapterAlias, globalLogger)

	monitor := wifi.NewMonitor(globalLogger, cfg.Wifi.Interface,
		func() {
			loop.Invoke(func() {
				ssid, ip, ok := wifiMgr.ActiveDetails()
				if !ok {
					globalLogger.Debug("address appeared but no active access point yet")
					return
				}
				machine.HandleIPv4Ready(ssid, ip)
			})
		},
		func() {
			loop.Invoke(machine.HandleIPv4Lost)
		},
	)
	activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
			globalLogger.Error(errors.Wrap(err, "address monitor"))
		}
	}, activeBackgroundWorkers.Done)

	sequencer := bluez.NewSequencer(globalLogger, bluez.NewManager(conn, adapter), loop.Invoke,
		gatt.AppPath, bluez.AdvertisementPath, func() {
			globalLogger.Info("bluez registration sequence finished")
		})
	loop.Invoke(sequencer.Start)

	loop.Run(ctx)
	globalLogger.Info("exited cleanly")
}

func newLogger(debug bool) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar().Named("provision-ble")
}

func setupExitSignalHandling() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 16)
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()
		defer cancel()
		for {
			var sig os.Signal
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case sig = <-sigChan:
			}

			switch sig {
			// things we exit for
			case os.Interrupt:
				fallthrough
			case syscall.SIGQUIT:
				fallthrough
			case syscall.SIGABRT:
				fallthrough
			case syscall.SIGTERM:
				globalLogger.Info("exiting")
				signal.Ignore(os.Interrupt, syscall.SIGTERM, syscall.SIGABRT) // keeping SIGQUIT for stack trace debugging
				return

			default:
				globalLogger.Debugw("received unknown signal", "signal", sig)
			}
		}
	}()

	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	return ctx, cancel
}

// helper to log.Fatal if error is non-nil.
func exitIfError(err error) {
	if err != nil {
		globalLogger.Fatal(err)
	}
}

func getLock() (lockfile.Lockfile, error) {
	pidFile, err := lockfile.New(filepath.Join(os.TempDir(), "provision-ble.pid"))
	if err != nil {
		return "", errors.Wrap(err, "init lockfile")
	}
	err = pidFile.TryLock()
	if err == nil {
		return pidFile, nil
	}

	globalLogger.Warn(errors.Wrapf(err, "locking %s", pidFile))

	// if it's a potentially temporary error, retry
	if errors.Is(err, lockfile.ErrBusy) || errors.Is(err, lockfile.ErrNotExist) {
		time.Sleep(2 * time.Second)
		globalLogger.Warn("retrying lock")
		err = pidFile.TryLock()
		if err == nil {
			return pidFile, nil
		}

		if errors.Is(err, lockfile.ErrBusy) {
			proc, ownerErr := pidFile.GetOwner()
			if ownerErr == nil {
				return "", errors.Errorf("other instance of provision-ble is already running with PID: %d", proc.Pid)
			}
			// stale lockfiles can survive a crash or reboot on systems
			// with low, repeating PIDs
			globalLogger.Warnf("deleting stale lockfile %s", pidFile)
			if err := os.RemoveAll(string(pidFile)); err != nil {
				return "", errors.Wrap(err, "removing lockfile")
			}
			return pidFile, pidFile.TryLock()
		}
	}
	return "", err
}
