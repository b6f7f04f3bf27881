// Command elfscope inspects ELF binaries: dump prints the parsed structure,
// symbolicate maps addresses to symbol names, and serve answers
// symbolication queries over a Unix socket.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	"github.com/rafi67/elfscope/elfimage"
	"github.com/rafi67/elfscope/elfimage/demangle"
	"github.com/rafi67/elfscope/localserver"
	"github.com/rafi67/elfscope/metrics"
)

var (
	verbose      = flag.Bool("verbose", false, "log debug details about rejected buffers and lookups")
	demangleMode = flag.String("demangle", "full", "demangle mode: none|simplified|templates|full")
	socketPath   = flag.String("socket", "/tmp/elfscope.sock", "socket path for serve")
	takeover     = flag.Bool("takeover", false, "adopt the listening socket from "+localserver.TakeoverEnv)
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: elfscope [flags] dump <file>\n")
	fmt.Fprintf(os.Stderr, "       elfscope [flags] symbolicate <file> <addr>...\n")
	fmt.Fprintf(os.Stderr, "       elfscope [flags] serve <file>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if *verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
	}
	var err error
	switch args[0] {
	case "dump":
		err = dump(logger, args[1:])
	case "symbolicate":
		err = symbolicate(logger, args[1:])
	case "serve":
		err = serve(logger, args[1:])
	default:
		usage()
	}
	if err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

func loadImage(logger log.Logger, path string, m *metrics.Metrics) (*elfimage.Image, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	img, err := elfimage.New(buf,
		elfimage.WithLogger(logger),
		elfimage.WithMetrics(m),
		elfimage.WithDemangler(demangle.New(demangle.ConvertOptions(*demangleMode)...)),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return img, nil
}

func dump(logger log.Logger, args []string) error {
	if len(args) != 1 {
		usage()
	}
	img, err := loadImage(logger, args[0], nil)
	if err != nil {
		return err
	}
	if bid, err := img.BuildID(); err == nil {
		fmt.Printf("build id: %s (%s)\n", bid.ID, bid.Typ)
	}
	img.Dump(os.Stdout)

	names := lo.Map(lo.Range(img.SectionCount()), func(i int, _ int) string {
		return img.Section(i).Name()
	})
	fmt.Printf("sections: %s\n", strings.Join(names, " "))
	return nil
}

func parseAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	addr, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "address %q", s)
	}
	return addr, nil
}

func symbolicate(logger log.Logger, args []string) error {
	if len(args) < 2 {
		usage()
	}
	img, err := loadImage(logger, args[0], nil)
	if err != nil {
		return err
	}
	for _, arg := range args[1:] {
		addr, err := parseAddr(arg)
		if err != nil {
			return err
		}
		fmt.Printf("%#x %s\n", addr, img.Symbolicate(addr))
	}
	return nil
}

// serve answers line-oriented queries over a Unix socket: each line is a hex
// address, each response line the symbolicated form.
func serve(logger log.Logger, args []string) error {
	if len(args) != 1 {
		usage()
	}
	reg := prometheus.NewRegistry()
	img, err := loadImage(logger, args[0], metrics.New(reg))
	if err != nil {
		return err
	}

	srv := localserver.New(logger, func(conn net.Conn) {
		go handleConn(logger, img, conn)
	})
	if *takeover {
		err = srv.TakeoverFromEnv(*socketPath)
	} else {
		err = srv.Listen(*socketPath)
	}
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "serving symbolication queries", "socket", *socketPath)

	var g run.Group
	g.Add(func() error {
		return srv.Serve()
	}, func(error) {
		srv.Close()
	})
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))
	err = g.Run()
	dumpCounters(logger, reg)
	if _, ok := err.(run.SignalError); ok {
		return nil
	}
	return err
}

// dumpCounters logs the counter values accumulated over the run. The registry
// has no scrape endpoint, so this is how the numbers get out on shutdown.
func dumpCounters(logger log.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		level.Debug(logger).Log("msg", "gather metrics", "err", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			c := m.GetCounter()
			if c == nil {
				continue
			}
			kv := []interface{}{"msg", "metric", "name", mf.GetName(), "value", c.GetValue()}
			for _, l := range m.GetLabel() {
				kv = append(kv, l.GetName(), l.GetValue())
			}
			level.Info(logger).Log(kv...)
		}
	}
}

func handleConn(logger log.Logger, img *elfimage.Image, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addr, err := parseAddr(line)
		if err != nil {
			fmt.Fprintf(conn, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(conn, "%s\n", img.Symbolicate(addr))
	}
	if err := scanner.Err(); err != nil {
		level.Debug(logger).Log("msg", "connection read failed", "err", err)
	}
}
