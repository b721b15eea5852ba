package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/thelolagemann/cartreader/internal/board"
	"github.com/thelolagemann/cartreader/internal/config"
	"github.com/thelolagemann/cartreader/internal/gbx"
	"github.com/thelolagemann/cartreader/internal/sim"
	"github.com/thelolagemann/cartreader/pkg/log"
	"github.com/thelolagemann/cartreader/pkg/monitor"
	"github.com/thelolagemann/cartreader/pkg/store"
	"github.com/thelolagemann/cartreader/pkg/utils"
)

const saveExt = "sav"

// options are the actions requested on the command line.
type options struct {
	info, header bool
	romFile      string
	saveFile     string
	writeFile    string
	restore      bool
	serve        string
}

func main() {
	configFile := flag.String("config", "", "The board profile to load")
	simCart := flag.String("sim", "", "Use a simulated board with this cartridge inserted. Can be "+strings.Join(sim.CatalogNames(), ", "))
	debug := flag.Bool("debug", false, "Enable debug output")
	quiet := flag.Bool("quiet", false, "Only print errors")
	info := flag.Bool("info", false, "Print information about the inserted cartridge")
	header := flag.Bool("header", false, "Print a hex dump of the raw cartridge header")
	romFile := flag.String("rom", "", "Dump the ROM to this file")
	saveFile := flag.String("save", "", "Dump the save memory to this file")
	writeFile := flag.String("write", "", "Write this save file to the cartridge. The current save is backed up to the store first")
	restore := flag.Bool("restore", false, "Write the newest save kept in the store back to the cartridge")
	storeDir := flag.String("store", "", "The folder dumps are kept in, overriding the board profile")
	compress := flag.Bool("compress", false, "Compress dumps kept in the store")
	serve := flag.String("serve", "", "Serve the cartridge status over websocket on this address")
	flag.Parse()

	logger := log.New(*debug, *quiet)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal(err.Error())
	}
	if *storeDir != "" {
		cfg.Store = *storeDir
	}
	if *compress {
		cfg.Compress = true
	}

	var b *board.Board
	if *simCart != "" {
		b, err = board.Simulate(cfg, *simCart, logger)
	} else {
		b, err = board.Open(cfg, logger)
	}
	if err != nil {
		logger.Fatal(err.Error())
	}

	err = run(logger, cfg, b, options{
		info:      *info,
		header:    *header,
		romFile:   *romFile,
		saveFile:  *saveFile,
		writeFile: *writeFile,
		restore:   *restore,
		serve:     *serve,
	})
	// the pins go back to their idle functions before the process exits
	if cerr := b.Close(); cerr != nil {
		logger.Errorf("closing board: %v", cerr)
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}

// run carries out opts on b.
func run(logger log.Logger, cfg config.Board, b *board.Board, opts options) error {
	if opts.serve != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		m := monitor.New(b, monitor.WithLogger(logger), monitor.WithInterval(cfg.Poll))
		return monitor.Serve(ctx, opts.serve, m)
	}

	if opts.header {
		buf := make([]byte, gbx.HeaderDumpLen)
		n, platform := b.DumpHeader(buf)
		fmt.Printf("%s slot, %d bytes\n%s", platform, n, hex.Dump(buf[:n]))
	}

	platform := b.LoadHeader()
	if platform == gbx.PlatformNone {
		return errors.New("no cartridge inserted, or its header is invalid")
	}
	if opts.info {
		printInfo(b.Reader)
	}

	if opts.romFile == "" && opts.saveFile == "" && opts.writeFile == "" && !opts.restore {
		return nil
	}
	var storeOpts []store.Opt
	if cfg.Compress {
		storeOpts = append(storeOpts, store.Compressed())
	}
	s, err := store.New(cfg.Store, storeOpts...)
	if err != nil {
		return err
	}

	if opts.romFile != "" {
		logger.Infof("reading %dkB ROM, about %v", b.ROMSize()/1024, b.TimeToReadROM())
		buf := make([]byte, b.ROMSize())
		n, err := b.ReadROM(buf)
		if err != nil {
			return failed("reading ROM", err)
		}
		if err := keep(logger, s, opts.romFile, b.GameIdentifier(), platform.Extension(), buf[:n]); err != nil {
			return err
		}
	}

	if opts.saveFile != "" {
		logger.Infof("reading %s save, about %v", b.SaveType(), b.TimeToReadSave())
		buf := make([]byte, b.SaveSize())
		n, err := b.ReadSave(buf)
		if err != nil {
			return failed("reading save", err)
		}
		if err := keep(logger, s, opts.saveFile, b.GameIdentifier(), saveExt, buf[:n]); err != nil {
			return err
		}
	}

	var data []byte
	switch {
	case opts.writeFile != "":
		if data, err = utils.LoadFile(opts.writeFile); err != nil {
			return err
		}
	case opts.restore:
		// looked up before the backup below becomes the newest save
		path, err := s.Latest(b.GameIdentifier(), saveExt)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", b.GameIdentifier(), err)
		}
		if data, err = s.Load(path); err != nil {
			return err
		}
		logger.Infof("restoring %s", path)
	default:
		return nil
	}
	return writeSave(logger, s, b, data)
}

// writeSave backs the current save up to s, then writes data.
func writeSave(logger log.Logger, s *store.Store, b *board.Board, data []byte) error {
	if len(data) != b.SaveSize() {
		logger.Warnf("the save is %d bytes, the cartridge holds %d", len(data), b.SaveSize())
	}

	current := make([]byte, b.SaveSize())
	n, err := b.ReadSave(current)
	if err != nil {
		return failed("backing up save", err)
	}
	backup, err := s.Put(b.GameIdentifier(), saveExt, current[:n])
	if err != nil {
		return err
	}
	logger.Infof("backed up current save to %s", backup)

	logger.Infof("writing %s save, about %v", b.SaveType(), b.TimeToWriteSave())
	if n, err = b.WriteSave(data); err != nil {
		return failed("writing save", err)
	}
	logger.Infof("wrote %d bytes", n)
	return nil
}

func printInfo(r *gbx.Reader) {
	i := r.Info()
	fmt.Printf("Platform:    %s\n", i.Platform)
	fmt.Printf("Title:       %s\n", i.Title)
	fmt.Printf("Identifier:  %s\n", i.Identifier)
	if i.Maker != "" {
		fmt.Printf("Maker:       %s\n", i.Maker)
	}
	if i.Controller != "" {
		fmt.Printf("Mode:        %s\n", i.CGB)
		fmt.Printf("Controller:  %s\n", i.Controller)
	}
	fmt.Printf("ROM Size:    %dkB (read %v)\n", i.ROMSize/1024, r.TimeToReadROM())
	fmt.Printf("Save:        %s, %dB (read %v, write %v)\n", i.SaveType, i.SaveSize, r.TimeToReadSave(), r.TimeToWriteSave())
}

// keep writes data to file and keeps a copy in the store.
func keep(logger log.Logger, s *store.Store, file, identifier, ext string, data []byte) error {
	if err := os.WriteFile(file, data, 0644); err != nil {
		return err
	}
	path, err := s.Put(identifier, ext, data)
	if err != nil {
		return err
	}
	logger.Infof("wrote %d bytes to %s, kept %s", len(data), file, path)
	return nil
}

func failed(what string, err error) error {
	if errors.Is(err, gbx.ErrChanged) {
		return fmt.Errorf("%s: the cartridge changed, run again to use it: %w", what, err)
	}
	return fmt.Errorf("%s: %w (code %d)", what, err, gbx.Code(err))
}
