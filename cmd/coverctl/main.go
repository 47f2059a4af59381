// Command coverctl sends a single command to the roof controller.
//
//	coverctl -serial /dev/ttyACM0 open|close|stop|status
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/w1xm/covers_interface/client"
)

var (
	serialPort = flag.String("serial", "/dev/ttyACM0", "controller serial port")
	baud       = flag.Int("baud", 9600, "serial baud rate")
	timeout    = flag.Duration("timeout", 10*time.Second, "time to wait for the controller")
	wait       = flag.Bool("wait", false, "after open or close, wait until the covers stop moving (raise -timeout to cover the travel time)")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] open|close|stop|status\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	verb := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	statuses := make(chan client.Status, 16)
	covers, err := client.Connect(ctx, *serialPort, *baud, func(s client.Status) {
		select {
		case statuses <- s:
		default:
		}
	})
	if err != nil {
		log.Fatal(err)
	}

	// The first status marks the port as usable.
	for online := false; !online; {
		select {
		case s := <-statuses:
			online = s.State != client.Offline
		case <-ctx.Done():
			log.Fatalf("%s: controller not responding", *serialPort)
		}
	}

	switch verb {
	case "open":
		err = covers.Open(ctx)
	case "close":
		err = covers.Close(ctx)
	case "stop":
		err = covers.Stop(ctx)
	case "status":
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", verb, err)
	}

	if *wait {
		var target client.State
		switch verb {
		case "open":
			target = client.Open
		case "close":
			target = client.Closed
		}
		if target != client.Offline {
			s, err := covers.WaitFor(ctx, target)
			if err != nil {
				log.Fatalf("waiting for %v: %v", target, err)
			}
			fmt.Println(s.State)
			return
		}
	}

	s, err := covers.Refresh(ctx)
	if err != nil {
		log.Fatalf("status: %v", err)
	}
	fmt.Println(s.State)
}
