// Command coversd runs the roof cover controller: it sequences the actuator
// relays and answers the line protocol on a serial port.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/aamcrae/config"
	"github.com/w1xm/covers_interface/controller"
	"github.com/w1xm/covers_interface/persist"
	"github.com/w1xm/covers_interface/relay"
	"github.com/w1xm/covers_interface/relay/gpio"
	"github.com/w1xm/covers_interface/relay/modbusrelay"
	"github.com/w1xm/covers_interface/sequencer"
	"github.com/w1xm/covers_interface/simulator"
)

var (
	serialPort = flag.String("serial", "/dev/ttyGS0", "serial port the host talks to")
	baud       = flag.Int("baud", 9600, "serial baud rate")
	variant    = flag.String("variant", "pico", "sequencing preset (pico or avr)")
	configFile = flag.String("config", "", "config file overriding the preset")
	section    = flag.String("section", "roof", "config file section")
	relayKind  = flag.String("relay", "gpio", "relay driver (gpio, modbus or sim)")
	stateFile  = flag.String("state", "/var/lib/coversd/state", "file holding the persisted state")
	pins       = flag.String("pins", "18,19,20,21", "GPIO pins for the relay lines, in line order")
	activeLow  = flag.Bool("active_low", false, "relay inputs energize on a low GPIO level")
	modbusPort = flag.String("modbus_port", "", "relay board serial port")
	modbusBaud = flag.Int("modbus_baud", 19200, "relay board baud rate")
	modbusID   = flag.Int("modbus_id", 1, "relay board slave id")
)

func loadParams() (sequencer.Params, error) {
	if *configFile == "" {
		return sequencer.Preset(*variant)
	}
	conf, err := config.ParseFile(*configFile)
	if err != nil {
		return sequencer.Params{}, fmt.Errorf("%s: %v", *configFile, err)
	}
	return sequencer.ParseConfig(conf, *section)
}

func parsePins(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("pin %q: %v", f, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// driver is an open relay driver plus the cleanup and background loop it needs.
type driver struct {
	relay.Driver
	close func()
	// run, if set, is started alongside the controller.
	run func(ctx context.Context) error
}

func openDriver(ctx context.Context, params sequencer.Params) (*driver, error) {
	switch *relayKind {
	case "gpio":
		p, err := parsePins(*pins)
		if err != nil {
			return nil, err
		}
		b, err := gpio.Open(p, params.Layout, *activeLow)
		if err != nil {
			return nil, err
		}
		return &driver{Driver: b, close: func() {
			if err := b.Close(); err != nil {
				log.Printf("closing gpio: %v", err)
			}
		}}, nil
	case "modbus":
		b, err := modbusrelay.Connect(ctx, *modbusPort, *modbusBaud, byte(*modbusID), params.Layout, func(s modbusrelay.Status) {
			if s.Mismatch {
				log.Printf("relay board coils %v", s.Coils)
			}
		})
		if err != nil {
			return nil, err
		}
		return &driver{Driver: b, close: func() {}}, nil
	case "sim":
		roof := simulator.New(0, float64(params.Stagger)*simulator.TravelRate/2)
		return &driver{Driver: roof, run: roof.Run, close: func() {
			s := roof.Status()
			log.Printf("simulated panels at %.2f/%.2f, %d clashes", s.West, s.East, s.Clashes)
		}}, nil
	}
	return nil, fmt.Errorf("unknown relay driver %q", *relayKind)
}

func main() {
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := loadParams()
	if err != nil {
		log.Fatal(err)
	}
	drv, err := openDriver(ctx, params)
	if err != nil {
		log.Fatal(err)
	}
	defer drv.close()

	var store persist.Store
	if params.Persist {
		store = persist.NewFile(*stateFile)
	}
	seq, err := sequencer.New(params, drv, store)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%s controller on %q, %v", params.Name, *serialPort, seq.Status().Label())
	var also []func(context.Context) error
	if drv.run != nil {
		also = append(also, drv.run)
	}
	if err := controller.New(seq).Run(ctx, *serialPort, *baud, also...); err != nil {
		log.Print(err)
	}
	// Release the relays before exiting.
	if err := drv.SetOutputs(relay.Idle); err != nil {
		log.Printf("releasing relays: %v", err)
	}
}
