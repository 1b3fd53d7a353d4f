// Command sn2ctl is a small CLI around pkg/control's ControlClient,
// for operators to detect and (re)configure a sensor node by hand, in
// the style of the teacher's standalone cmd/diagnose and cmd/verify
// utilities.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sn2d/ingestd/pkg/control"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "detect":
		runDetect(os.Args[2:])
	case "configure":
		runConfigure(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sn2ctl detect -remote <host> | sn2ctl configure -remote <host> -dest <addr> -sntp <addr>")
}

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	remote := fs.String("remote", "", "node address or subnet broadcast address")
	local := fs.String("local", ":0", "local bind address for the control socket")
	timeout := fs.Duration("timeout", 5*time.Second, "response timeout")
	fs.Parse(args)

	if *remote == "" {
		fmt.Fprintln(os.Stderr, "sn2ctl detect: -remote is required")
		os.Exit(2)
	}

	client, err := control.Dial(*local)
	if err != nil {
		fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+time.Second)
	defer cancel()

	result, err := client.Detect(ctx, *remote, *timeout)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("peer=%s dest=%q sntp=%q rtt=%s\n", result.PeerAddr, result.DestAddr, result.SNTPAddr, result.RTT)
}

func runConfigure(args []string) {
	fs := flag.NewFlagSet("configure", flag.ExitOnError)
	remote := fs.String("remote", "", "node address")
	local := fs.String("local", ":0", "local bind address for the control socket")
	dest := fs.String("dest", "", "destination address to push to the node (< 16 ASCII bytes)")
	sntp := fs.String("sntp", "", "SNTP server address to push to the node (< 16 ASCII bytes)")
	timeout := fs.Duration("timeout", 5*time.Second, "response timeout")
	fs.Parse(args)

	if *remote == "" {
		fmt.Fprintln(os.Stderr, "sn2ctl configure: -remote is required")
		os.Exit(2)
	}

	client, err := control.Dial(*local)
	if err != nil {
		fatal(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+time.Second)
	defer cancel()

	if err := client.Configure(ctx, *remote, *dest, *sntp, *timeout); err != nil {
		fatal(err)
	}

	fmt.Println("configured")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "sn2ctl: %v\n", err)
	os.Exit(1)
}
