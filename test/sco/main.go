package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/rigado/sco"
	"github.com/rigado/sco/cache"
	"github.com/rigado/sco/linux/hci"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "sco"
	app.Usage = "exercise synchronous voice links against a real controller"

	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "device, d",
			Value: -1,
			Usage: "hci index, -1 for first available",
		},
		cli.StringFlag{
			Name:  "uart",
			Usage: "h4 uart device path, overrides --device",
		},
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "trace level logging",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "print channel state transitions",
		},
		cli.StringFlag{
			Name:  "cache",
			Usage: "peer cache file",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "dial",
			Usage: "set up an outgoing link to an ACL-connected peer and echo voice frames",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "addr, a", Usage: "peer address (aa:bb:cc:dd:ee:ff)"},
				cli.DurationFlag{Name: "dur", Value: 10 * time.Second, Usage: "how long to keep the link up"},
				cli.BoolFlag{Name: "secure", Usage: "require an encrypted baseband first"},
			},
			Action: dial,
		},
		{
			Name:  "listen",
			Usage: "accept incoming links and echo voice frames back",
			Flags: []cli.Flag{
				cli.DurationFlag{Name: "dur", Value: 60 * time.Second, Usage: "how long to listen"},
				cli.BoolFlag{Name: "secure", Usage: "only take links over an encrypted baseband"},
			},
			Action: listen,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newHost(c *cli.Context) (*hci.HCI, error) {
	if c.GlobalBool("verbose") {
		sco.SetLogLevelMax()
	}

	opts := []sco.Option{}
	if p := c.GlobalString("uart"); p != "" {
		opts = append(opts, sco.OptTransportH4Uart(p))
	} else {
		opts = append(opts, sco.OptTransportHCISocket(c.GlobalInt("device")))
	}
	if c.GlobalBool("trace") {
		opts = append(opts, sco.OptStateTrace(func(peer sco.Addr, from, to string) {
			fmt.Printf("%s: %s -> %s\n", peer, from, to)
		}))
	}
	if f := c.GlobalString("cache"); f != "" {
		opts = append(opts, sco.OptPeerCache(cache.New(f)))
	}

	h, err := hci.NewHCI(opts...)
	if err != nil {
		return nil, err
	}
	if err := h.Init(); err != nil {
		h.Close()
		return nil, err
	}

	fmt.Printf("local addr: %s\n", h.Addr())
	return h, nil
}

func dial(c *cli.Context) error {
	addr := sco.NewAddr(c.String("addr"))
	if !sco.AddrValid(addr) {
		return fmt.Errorf("bad or missing --addr %q", c.String("addr"))
	}

	h, err := newHost(c)
	if err != nil {
		return err
	}
	defer h.Close()

	up := make(chan *hci.Chan, 1)
	down := make(chan uint8, 1)
	ch := &hci.Chan{
		Secure: c.Bool("secure"),
		Ops: hci.ChanOps{
			Connected:    func(ch *hci.Chan) { up <- ch },
			Disconnected: func(ch *hci.Chan, reason uint8) { down <- reason },
		},
	}

	conn, err := h.CreateSCOConn(addr, ch)
	if err != nil {
		return err
	}
	defer conn.Unref()

	select {
	case <-up:
		fmt.Printf("link up: handle 0x%04x type %s\n", conn.Handle(), conn.Type())
	case reason := <-down:
		return fmt.Errorf("setup failed: reason 0x%02x", reason)
	case <-time.After(10 * time.Second):
		return fmt.Errorf("setup timed out")
	}

	go echo(conn)

	select {
	case reason := <-down:
		fmt.Printf("link down: reason 0x%02x\n", reason)
		return nil
	case <-time.After(c.Duration("dur")):
	}

	return conn.Close()
}

func listen(c *cli.Context) error {
	h, err := newHost(c)
	if err != nil {
		return err
	}
	defer h.Close()

	sec := hci.SecurityLow
	if c.Bool("secure") {
		sec = hci.SecurityMedium
	}

	srv := &hci.Server{
		SecLevel: sec,
		Accept: func(info *hci.AcceptInfo) (*hci.Chan, error) {
			fmt.Printf("incoming %s from %s, class % x\n",
				info.LinkType, info.Conn.RemoteAddr(), info.DevClass)
			return &hci.Chan{
				Ops: hci.ChanOps{
					Connected: func(ch *hci.Chan) {
						fmt.Printf("link up: handle 0x%04x\n", ch.Conn().Handle())
						go echo(ch.Conn())
					},
					Disconnected: func(ch *hci.Chan, reason uint8) {
						fmt.Printf("link down: reason 0x%02x\n", reason)
					},
				},
			}, nil
		},
	}
	if err := h.RegisterServer(srv); err != nil {
		return err
	}
	defer h.UnregisterServer(srv)

	fmt.Printf("listening for %s...\n", c.Duration("dur"))
	<-time.After(c.Duration("dur"))
	return nil
}

// echo reads voice frames and writes them straight back, a poor man's
// loopback that most headsets render as sidetone.
func echo(conn *hci.Conn) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err == io.EOF {
			return
		}
		if err != nil || n == 0 {
			continue
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return
		}
	}
}
