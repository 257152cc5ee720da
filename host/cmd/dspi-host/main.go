// Command dspi-host drives an EUSCI_B module on an MSP432 running the DSPI
// bridge firmware, or on a simulated chip with -sim.
//
//	dspi-host -device /dev/ttyACM0 -module 1 -mode 3 -hz 400000 transfer 9f000000
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/exp/slog"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/host/client"
	"github.com/DelfiSpace/DSPI/host/serial"
	"github.com/DelfiSpace/DSPI/sim"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", serial.DefaultBaud, "Baud rate of the bridge UART")
	module  = flag.Uint("module", 0, "EUSCI_B module (0-3)")
	mode    = flag.Uint("mode", 0, "SPI mode (0-3)")
	hz      = flag.Uint("hz", core.DefaultFrequency, "Bit rate in master mode")
	lsb     = flag.Bool("lsb", false, "Shift the least significant bit first")
	slave   = flag.Bool("slave", false, "Configure the module as slave")
	timeout = flag.Duration("timeout", client.DefaultTimeout, "Reply timeout")
	simMode = flag.Bool("sim", false, "Use a simulated chip with SIMO looped back to SOMI")
	verbose = flag.Bool("verbose", false, "Enable debug logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] command [hex]\n\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  transfer <hex>  - Configure the module and exchange the given bytes")
	fmt.Fprintln(os.Stderr, "  send <hex>      - Configure the module and send the given bytes")
	fmt.Fprintln(os.Stderr, "  config          - Configure the module (master, or slave with -slave)")
	fmt.Fprintln(os.Stderr, "  status          - Show open and overrun modules")
	fmt.Fprintln(os.Stderr, "  close           - Release the module")
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, flag.Args()); err != nil {
		logger.Error("failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("no command given")
	}
	if *module >= core.ModuleCount {
		return fmt.Errorf("module %d: %w", *module, core.ErrInvalidModule)
	}
	m := core.ModuleID(*module)
	cmd := args[0]

	cfg, err := buildConfig(cmd, *mode, *hz, *lsb, *slave)
	if err != nil {
		return err
	}

	port, err := openPort(logger)
	if err != nil {
		return err
	}
	c := client.New(port, client.WithTimeout(*timeout), client.WithLogger(logger))
	defer c.Close()

	ctx := context.Background()

	switch cmd {
	case "transfer", "send":
		if len(args) < 2 {
			return fmt.Errorf("%s needs hex data", cmd)
		}
		data, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
		if err := c.Configure(ctx, m, cfg); err != nil {
			return fmt.Errorf("failed to configure %s: %w", m, err)
		}
		if cmd == "send" {
			if err := c.Send(ctx, m, data); err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			logger.Info("sent", slog.String("module", m.String()), slog.Int("bytes", len(data)))
			return nil
		}
		r, err := c.Transfer(ctx, m, data)
		if err != nil {
			return fmt.Errorf("transfer failed: %w", err)
		}
		fmt.Println(hex.EncodeToString(r))

	case "config":
		if err := c.Configure(ctx, m, cfg); err != nil {
			return fmt.Errorf("failed to configure %s: %w", m, err)
		}
		logger.Info("configured", slog.String("module", m.String()), slog.String("role", cfg.Role.String()))

	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		for i := core.ModuleID(0); i < core.ModuleCount; i++ {
			fmt.Printf("%s  active=%v overrun=%v\n", i, st.Active&(1<<i) != 0, st.Overrun&(1<<i) != 0)
		}

	case "close":
		if err := c.CloseModule(ctx, m); err != nil {
			return fmt.Errorf("failed to close %s: %w", m, err)
		}

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// buildConfig turns the flags into the configuration cmd applies
func buildConfig(cmd string, mode, hz uint, lsb, slave bool) (core.Config, error) {
	if mode > uint(core.Mode3) {
		return core.Config{}, fmt.Errorf("mode %d: %w", mode, core.ErrInvalidMode)
	}
	if hz > math.MaxUint32 {
		return core.Config{}, fmt.Errorf("bit rate %d Hz out of range", hz)
	}

	role := core.RoleMaster
	if slave {
		// Nothing on the bridge clocks a slave, so it can only be configured
		if cmd == "transfer" || cmd == "send" {
			return core.Config{}, fmt.Errorf("%s needs a master; configure slaves with the config command", cmd)
		}
		role = core.RoleSlave
	}
	cfg := core.DefaultConfig(role)
	cfg.Mode = core.SPIMode(mode)
	if role == core.RoleMaster {
		cfg.Frequency = uint32(hz)
	}
	if lsb {
		cfg.Order = core.LSBFirst
	}
	return cfg, cfg.Validate()
}

// openPort opens the serial device, or with -sim a pipe to a bridge session
// running on a simulated chip
func openPort(logger *slog.Logger) (io.ReadWriteCloser, error) {
	if !*simMode {
		cfg := serial.DefaultConfig(*device)
		cfg.Baud = *baud
		return serial.Open(cfg)
	}

	chip := sim.NewChip()
	for m := core.ModuleID(0); m < core.ModuleCount; m++ {
		chip.SetPeer(m, sim.Loopback{})
	}
	ctrl := core.NewController(chip.Platform())
	ctrl.SetLogger(logger.With(slog.String("side", "device")))

	host, dev := net.Pipe()
	session := core.NewSession(ctrl, dev)
	go func() {
		err := session.Serve(dev)
		logger.Debug("simulated device stopped", slog.Any("reason", err))
		session.Close()
	}()

	// Give the device side a moment, like a board coming out of reset
	time.Sleep(10 * time.Millisecond)
	return host, nil
}
