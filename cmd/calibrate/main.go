// Command calibrate times reads and writes of the inserted cartridge at
// increasing sizes and fits the transfer rate the time estimates use.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thelolagemann/cartreader/internal/board"
	"github.com/thelolagemann/cartreader/internal/calibrate"
	"github.com/thelolagemann/cartreader/internal/config"
	"github.com/thelolagemann/cartreader/internal/gbx"
	"github.com/thelolagemann/cartreader/pkg/log"
)

func main() {
	configFile := flag.String("config", "", "The board profile to load")
	simCart := flag.String("sim", "", "Calibrate against a simulated cartridge instead of the hardware")
	target := flag.String("target", "rom", "What to time. Can be rom, save or write")
	steps := flag.Int("steps", 8, "The number of sizes to time")
	out := flag.String("out", "", "Write a plot of the samples and the fit to this PNG file")
	debug := flag.Bool("debug", false, "Enable debug output")
	flag.Parse()

	logger := log.New(*debug, false)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal(err.Error())
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
	defer b.Close()

	if b.LoadHeader() == gbx.PlatformNone {
		logger.Fatal("no cartridge inserted")
	}

	var (
		transfer calibrate.Transfer
		size     int
	)
	switch *target {
	case "rom":
		transfer, size = b.ReadROM, b.ROMSize()
	case "save":
		transfer, size = b.ReadSave, b.SaveSize()
	case "write":
		// write the current contents back so nothing is lost
		size = b.SaveSize()
		current := make([]byte, size)
		if _, err := b.ReadSave(current); err != nil {
			logger.Fatal(err.Error())
		}
		transfer = func(buf []byte) (int, error) {
			return b.WriteSave(current[:len(buf)])
		}
	default:
		logger.Fatal(fmt.Sprintf("unknown target %q", *target))
	}
	if size == 0 {
		logger.Fatal("nothing to time: size is 0")
	}

	title := fmt.Sprintf("%s %s %s", b.CartridgeType(), b.GameTitle(), *target)
	logger.Infof("timing %s in %d steps up to %d bytes", title, *steps, size)

	samples, err := calibrate.Measure(calibrate.Sizes(size, *steps), transfer, b.Now)
	if err != nil {
		logger.Fatal(err.Error())
	}
	for _, s := range samples {
		fmt.Printf("%10d bytes %10v\n", s.Bytes, s.Elapsed)
	}

	fit, err := calibrate.FitRate(samples)
	if err != nil {
		logger.Fatal(err.Error())
	}
	fmt.Println(fit)

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			logger.Fatal(err.Error())
		}
		defer f.Close()
		if err := calibrate.Plot(f, title, samples, fit); err != nil {
			logger.Fatal(err.Error())
		}
	}
}
